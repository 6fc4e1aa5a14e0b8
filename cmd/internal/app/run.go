package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/chatroom.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return NewRootCommand().ExecuteContext(ctx)
}
