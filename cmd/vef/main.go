// Package main is the entry point for the vef application.
package main

import (
	"os"

	"github.com/vefmedia/vef/cmd/vef/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
