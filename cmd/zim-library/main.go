// Package main is the entry point for the zim-library catalog service.
package main

import (
	"os"

	"github.com/zimshelf/zim-library/cmd/zim-library/app"
)

func main() {
	// stdout stays clean for the list and version output
	setupLogging(os.Stderr)

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
