// Command fpkb is the Farmer Power knowledge base CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driving/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cli.SetVersion(version)
	cli.SetBootstrap(build)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
