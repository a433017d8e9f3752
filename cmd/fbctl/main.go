// Package main is the entry point for fbctl, the feedbacker CLI.
package main

import (
	"os"

	"feedbacker/cmd/fbctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
