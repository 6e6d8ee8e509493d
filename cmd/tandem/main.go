// Package main provides the entry point for the tandem CLI.
package main

import (
	"fmt"
	"os"

	"github.com/tandemcode/tandem/cmd/tandem/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
