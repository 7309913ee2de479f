package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shouni/gemini-character-kit/internal/cli"
	"github.com/shouni/gemini-character-kit/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(nil).ExecuteContext(ctx); err != nil {
		logging.Error(err.Error())
		stop()
		os.Exit(1)
	}
}
