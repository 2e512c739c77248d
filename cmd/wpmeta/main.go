package main

import (
	"os"

	"github.com/wp-orm/wpmeta/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
