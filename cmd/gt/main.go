// Package main is the entry point for the gt CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/cli"
	"github.com/runoshun/gastown/internal/domain"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	container, err := app.New(cwd)
	if errors.Is(err, domain.ErrNotInitialized) {
		// Outside a workspace only init, help and version run; the root
		// command rejects everything else.
		container, err = app.NewForInit(cwd)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	return cli.NewRootCommand(container, version).Execute()
}
