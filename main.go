// Package main is the entry point for nfreject.
package main

import (
	"os"

	"firestige.xyz/nfreject/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
