// Package main is the entry point for the chathelp-relay server CLI.
//
// Usage:
//
//	chathelp-relay [flags] <command>
//
// Commands:
//
//	serve      - Run the relay server
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/chathelp/relay/cmd/chathelp-relay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
