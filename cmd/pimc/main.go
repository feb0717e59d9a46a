// Command pimc estimates π by parallel Monte Carlo sampling.
package main

import (
	"github.com/tebeka/atexit"
)

func main() {
	code := 0
	if err := newRootCmd().Execute(); err != nil {
		code = 1
	}

	atexit.Exit(code)
}
