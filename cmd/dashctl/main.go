// Command dashctl is the operator CLI for the conversation analytics
// dashboard.
//
// Usage:
//
//	dashctl [--config configs/dashboard.yaml] <command>
package main

import (
	"context"
	"os"

	"github.com/umbusk1/bibliofep/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
