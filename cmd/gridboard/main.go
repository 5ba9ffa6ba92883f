// Package main provides the gridboard CLI entry point.
package main

import (
	"os"

	"github.com/gridline-labs/gridboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
