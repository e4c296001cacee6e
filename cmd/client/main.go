package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/bridge-chat/internal/client"
	"github.com/omochice/bridge-chat/internal/client/tcp"
	"github.com/omochice/bridge-chat/internal/logging"
)

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "127.0.0.1:8081", "Pool address (e.g., 127.0.0.1:8081)")
	username := flag.String("username", "", "Name announced to the relay")
	flag.Parse()

	logger := logging.New(os.Stderr, slog.LevelInfo, "text")

	if *username == "" {
		logger.Error("username is required, use the -username flag")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := tcp.New(*serverAddr, *username, logger)
	if err := c.Connect(ctx); err != nil {
		logger.Error("failed to connect", "server", *serverAddr, "error", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	logger.Info("connected", "server", *serverAddr, "username", *username)
	fmt.Println("Type your messages (or 'quit' to exit):")

	if err := client.Session(ctx, c, os.Stdin, os.Stdout); err != nil {
		logger.Error("session ended", "error", err)
	}
	logger.Info("disconnected from server")
}
