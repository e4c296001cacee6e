// Command server relays lines between two pools of TCP peers.
//
// Usage:
//
//	server [flags] [addr-a [addr-b]]
//
// Peers on addr-a (default 127.0.0.1:8081) reach every peer on addr-b
// (default 127.0.0.1:8080) and the other way round.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/omochice/bridge-chat/internal/chat"
	"github.com/omochice/bridge-chat/internal/config"
	"github.com/omochice/bridge-chat/internal/logging"
	"github.com/omochice/bridge-chat/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "Log format: text, json")
	webSocket := fs.Bool("websocket", false, "Also accept WebSocket peers on both pool listeners")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *webSocket {
		cfg.WebSocket.Enabled = true
	}
	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Pools.A.Listen = fs.Arg(0)
	case 2:
		cfg.Pools.A.Listen = fs.Arg(0)
		cfg.Pools.B.Listen = fs.Arg(1)
	default:
		return errors.New("at most two listen addresses may be given")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level, cfg.Logging.Format)
	slog.SetDefault(logger)

	printStartup(cfg)

	relay := server.NewRelay(cfg.Pools.A.Name, cfg.Pools.B.Name, server.Options{
		Agent: chat.AgentConfig{
			TickBudget:   cfg.Agent.TickBudget,
			WriteTimeout: cfg.Agent.WriteTimeout,
		},
		WebSocket: cfg.WebSocket.Enabled,
		Logger:    logger,
	})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- relay.ListenAndServe(cfg.Pools.A.Listen, cfg.Pools.B.Listen)
	}()

	// Wait for either error or shutdown signal
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		relay.Stop()
		if err := <-errChan; err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	}

	logger.Info("relay stopped")
	return nil
}

func printStartup(cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	cyan.Println("bridge-chat relay")
	green.Print("    ▶ ")
	fmt.Printf("Pool %-6s %s\n", cfg.Pools.A.Name, cfg.Pools.A.Listen)
	green.Print("    ▶ ")
	fmt.Printf("Pool %-6s %s\n", cfg.Pools.B.Name, cfg.Pools.B.Listen)
	if cfg.WebSocket.Enabled {
		gray.Println("      websocket upgrades enabled")
	}
	fmt.Println()
}
