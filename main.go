// The main package for the soldcrawler executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/sold-listings-crawler/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
