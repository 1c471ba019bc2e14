package main

import (
	"fmt"
	"os"

	"github.com/renezit0/despesa-agil-93/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	if err := newRootCmd(openBackend).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
