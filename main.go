package main

import (
	"os"

	"github.com/opsai/opsflow/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
