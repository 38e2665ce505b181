package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/topiga/currency/internal/cli"
	"github.com/topiga/currency/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run(context.Background(), os.LookupEnv, os.Stdout, os.Stderr))
}

// run serves until a shutdown signal arrives or ctx ends.
func run(ctx context.Context, lookupEnv func(string) (string, bool), stdout, stderr io.Writer) int {
	// Load configuration
	cfg, err := config.LoadWithLookup(lookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	server, err := cli.NewServer(cfg, version, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start server: %v\n", err)
		return 1
	}

	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Server stopped: %v\n", err)
		return 1
	}
	return 0
}
