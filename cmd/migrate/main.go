package main

import (
	"os"

	"github.com/imagegenio/orchestrator/cmd/migrate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
