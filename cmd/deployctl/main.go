// Where: cmd/deployctl/main.go
// What: CLI entrypoint.
// Why: Execute deployctl commands with configured dependencies.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aaqstack/deployctl/internal/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := command.Run(ctx, os.Args[1:], buildDependencies())
	stop()
	os.Exit(code)
}
