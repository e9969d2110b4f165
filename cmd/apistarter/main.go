package main

import (
	"context"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/apistarter/apistarter/internal/cmd"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2025-10-28"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		// Command execution failed - delegate to exit helper
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "Command execution failed", err)
	}
}
