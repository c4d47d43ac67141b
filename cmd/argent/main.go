package main

import (
	"os"

	"github.com/argent-dev/argent/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
