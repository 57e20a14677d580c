// attn sends events to the collector from the command line.
//
// Usage:
//
//	attn [--config <path>] <command> [flags]
//
// Commands:
//
//	resolve        Print the geo domain for the configured account
//	info           Send the initialization ping
//	purchase       Send a purchase (one p request per item plus oc)
//	add-to-cart    Send an add-to-cart event
//	product-view   Send a product-view event
//	custom         Send a custom event
//	identify       Merge identifiers into the stored user and announce them
//	clear-user     Start a new visitor
//	version        Print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/config"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/storage"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/attentive"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd, args, configPath := parseArgs(os.Args[1:])

	if cmd == "" || cmd == "help" || cmd == "--help" || cmd == "-h" {
		printUsage()
		if cmd == "" {
			os.Exit(1)
		}
		return
	}
	if cmd == "version" || cmd == "--version" || cmd == "-v" {
		fmt.Printf("attn version %s\n", version)
		return
	}

	if err := run(cmd, args, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "attn: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs pulls --config out of raw and splits the rest into a command and
// its arguments.
func parseArgs(raw []string) (command string, args []string, configPath string) {
	var filtered []string
	for i := 0; i < len(raw); i++ {
		if raw[i] == "--config" && i+1 < len(raw) {
			configPath = raw[i+1]
			i++
			continue
		}
		filtered = append(filtered, raw[i])
	}
	if len(filtered) == 0 {
		return "", nil, configPath
	}
	return filtered[0], filtered[1:], configPath
}

func printUsage() {
	fmt.Printf(`attn - event CLI %s

Usage:
  attn [--config <path>] <command> [flags]

Commands:
  resolve                    Print the geo domain for the configured account
  info                       Send the initialization ping
  purchase                   Send a purchase (--item product:variant:price, --order)
  add-to-cart                Send an add-to-cart event (--item, --deeplink)
  product-view               Send a product-view event (--item, --deeplink)
  custom                     Send a custom event (--type, --prop k=v)
  identify                   Announce identifiers (--client-user-id, --email, --phone)
  clear-user                 Start a new visitor
  version                    Print the version

Config is read from attentive.json or attentive.yaml in the working
directory, or from --config / ATTN_CONFIG.
`, version)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		os.Setenv(config.EnvConfig, path)
	}
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cmd string, args []string, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	timeout, _ := cfg.Timeout()

	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	api := attentive.NewAPI(attentive.Config{
		CDNBaseURL:    cfg.CDNBaseURL,
		EventsBaseURL: cfg.EventsBaseURL,
		HTTPClient:    &http.Client{Timeout: timeout},
		UserAgent:     "attn-cli/" + version,
		Logger:        logger,
	})

	if cmd == "resolve" {
		geo, err := api.ResolveDomain(ctx, cfg.Domain)
		if err != nil {
			return err
		}
		fmt.Println(geo)
		return nil
	}

	tracker, err := attentive.NewTracker(ctx, api, attentive.TrackerConfig{
		Domain:  cfg.Domain,
		Storage: store,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if cmd == "clear-user" {
		if err := tracker.ClearUser(ctx); err != nil {
			return err
		}
		fmt.Println(tracker.Identifiers().VisitorID())
		return nil
	}

	outcome := newOutcome()
	switch cmd {
	case "info":
		tracker.Start(outcome)
	case "identify":
		ids, err := parseIdentify(args)
		if err != nil {
			return err
		}
		tracker.Identify(ids, outcome)
	case "purchase", "add-to-cart", "product-view", "custom":
		ev, err := buildEvent(cmd, args)
		if err != nil {
			return err
		}
		tracker.RecordEvent(ev, outcome)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return outcome.wait(ctx)
}

// outcome turns the send callback into a blocking wait.
type outcome chan error

func newOutcome() outcome { return make(outcome, 1) }

func (o outcome) OnSuccess() { o <- nil }

func (o outcome) OnFailure(message string) { o <- errors.New(message) }

func (o outcome) wait(ctx context.Context) error {
	select {
	case err := <-o:
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
		fmt.Println("sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for send: %w", ctx.Err())
	}
}
