// Package main provides the CLI for the Sparkify song play lakehouse.
package main

import (
	"os"

	"github.com/mking01/spark-data-lakes/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
