// Command posetrace annotates videos with body pose skeletons and joint angles.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayusman/posetrace/cmd/posetrace/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.Execute(ctx)
	stop()
	os.Exit(code)
}
