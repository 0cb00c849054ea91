// Command replied is the terminal client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"replied/internal/api"
	"replied/internal/auth"
	"replied/internal/cli"
	"replied/internal/config"
	"replied/internal/media"
	"replied/internal/notifications"
	"replied/internal/observability"
	"replied/internal/realtime"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.Configure(cfg.Env)

	deps := cli.Deps{
		Backend:   api.NewClient(cfg.BackendURL, cfg.HTTPTimeout()),
		Uploader:  media.NewStorage(cfg.StorageURL, cfg.StorageBucket, cfg.AuthAnonKey, cfg.HTTPTimeout()),
		PublicURL: cfg.PublicURL,
	}
	if cfg.AuthURL != "" {
		deps.GoTrue = auth.NewGoTrue(cfg.AuthURL, cfg.AuthAnonKey, cfg.HTTPTimeout())
	}
	if cfg.RealtimeURL != "" {
		rt, err := realtime.NewClient(cfg.RealtimeURL, cfg.AuthAnonKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Realtime disabled: %v\n", err)
		} else {
			deps.Subscribe = notifications.RealtimeSubscriber(rt)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, deps, os.Args[1:])
	stop()
	os.Exit(code)
}
