package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xsequent/arbswap/cmd"
	"github.com/0xsequent/arbswap/utils"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		utils.GetLogger().Info("Shutting down gracefully...")
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		utils.CleanupLogger()
		os.Exit(1)
	}
	utils.CleanupLogger()
}
