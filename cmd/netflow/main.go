package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// main 是命令行入口
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
