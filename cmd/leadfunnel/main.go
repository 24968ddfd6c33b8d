package main

import (
	"os"

	"github.com/leadfunnel/leadfunnel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
