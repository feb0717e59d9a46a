package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tahsin716/pimc/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.history(cmd)
		},
	}

	f := cmd.Flags()
	f.String("db", "", "SQLite run history")
	f.Int("limit", 20, "maximum number of runs, 0 for all")
	f.String("output", "yaml", "output format (yaml, json)")

	return cmd
}

type historyEntry struct {
	RunID         string    `json:"run_id" yaml:"run_id"`
	Started       time.Time `json:"started" yaml:"started"`
	Backend       string    `json:"backend" yaml:"backend"`
	PiEstimate    *float64  `json:"pi_estimate" yaml:"pi_estimate"`
	Accuracy      int64     `json:"accuracy" yaml:"accuracy"`
	Workers       int64     `json:"workers" yaml:"workers"`
	Requested     int64     `json:"requested_samples" yaml:"requested_samples"`
	Samples       int64     `json:"total_samples" yaml:"total_samples"`
	Hits          int64     `json:"hits_inside" yaml:"hits_inside"`
	ElapsedMillis int64     `json:"elapsed_ms" yaml:"elapsed_ms"`
	Tier          string    `json:"tier" yaml:"tier"`
	CapExceeded   bool      `json:"cap_exceeded" yaml:"cap_exceeded"`
	Partial       bool      `json:"partial" yaml:"partial"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func newHistoryEntry(r store.Record) historyEntry {
	e := historyEntry{
		RunID:         r.RunID,
		Started:       r.Started(),
		Backend:       r.Backend,
		Accuracy:      r.Accuracy,
		Workers:       r.Workers,
		Requested:     r.Requested,
		Samples:       r.Samples,
		Hits:          r.Hits,
		ElapsedMillis: r.ElapsedMillis,
		Tier:          r.Tier,
		CapExceeded:   r.CapExceeded,
		Partial:       r.Partial,
		Error:         r.Error,
	}
	if pi := r.Pi(); !math.IsNaN(pi) {
		e.PiEstimate = &pi
	}
	return e
}

func (a *app) history(cmd *cobra.Command) error {
	path := a.v.GetString("db")
	if path == "" {
		return errors.New("--db is required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no run history: %w", err)
	}

	history, err := store.Open(path, store.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer history.Close()

	records, err := history.List(a.v.GetInt("limit"))
	if err != nil {
		return err
	}

	entries := make([]historyEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, newHistoryEntry(r))
	}

	return encodeHistory(cmd.OutOrStdout(), entries, a.v.GetString("output"))
}

func encodeHistory(w io.Writer, entries []historyEntry, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
