// Package main provides the StaleGuard CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/staleguard/cmd/staleguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
