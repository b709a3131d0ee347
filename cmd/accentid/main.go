// Package main is the entry point for the accentid CLI.
//
// Usage:
//
//	accentid [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve     - Serve the accent detection web page and API
//	classify  - Classify files or URLs from the terminal
//	model     - Manage the cached model (pull, list, info, rm)
//	config    - Configuration management (contexts, settings)
//	version   - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/accentid/cmd/accentid/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
