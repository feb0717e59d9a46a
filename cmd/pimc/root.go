package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	v   *viper.Viper
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{
		v:   viper.New(),
		log: logrus.New(),
	}

	rootCmd := &cobra.Command{
		Use:   "pimc",
		Short: "Estimate π with parallel Monte Carlo sampling.",
		Long: `pimc estimates π by sampling integer points of a square and counting ` +
			`those inside the inscribed quarter circle. Sampling is split over a pool ` +
			`of workers. Every flag can also be set in a YAML config file or through ` +
			`PIMC_<FLAG> environment variables, read from a .env file as well.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(newRunCmd(a), newHistoryCmd(a))

	return rootCmd
}

// setup loads the environment, binds the flags of the executing command and
// configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	a.v.SetEnvPrefix("PIMC")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level, err := logrus.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.log.SetLevel(level)
	a.log.SetOutput(cmd.ErrOrStderr())

	switch format := a.v.GetString("log-format"); format {
	case "text":
		a.log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	case "json":
		a.log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	return nil
}
