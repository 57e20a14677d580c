// twin-attentive simulates the collector for local development and tests:
// it serves per-account tag scripts carrying a geo domain and records event
// submissions for inspection under /admin.
//
// Point the SDK at it with cdn_base_url and events_base_url (or ATTN_CDN_URL
// and ATTN_EVENTS_URL) set to http://localhost:<port>.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/twin"
)

func main() {
	cfg, err := twin.ParseFlags("twin-attentive", os.Args[1:])
	if err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	tw := twin.New(cfg, nil)

	if cfg.SeedFile != "" {
		if err := tw.LoadSeed(cfg.SeedFile); err != nil {
			log.Fatalf("failed to load seed data: %v", err)
		}
		tw.Logger.Info("loaded seed data", "file", cfg.SeedFile)
	}

	tw.Logger.Info("twin-attentive ready", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tw.Serve(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
