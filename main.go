package main

import (
	"fmt"
	"os"

	"github.com/jviitala/labelkit/cmd"
	"github.com/jviitala/labelkit/internal/conf"
	"github.com/jviitala/labelkit/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
