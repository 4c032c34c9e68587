// Package main is the entry point for the autoclip application.
package main

import (
	"os"

	"github.com/jmylchreest/autoclip/cmd/autoclip/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
