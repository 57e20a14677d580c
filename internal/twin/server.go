// Package twin is a local stand-in for the collector: it serves the account
// tag script that carries the geo domain, records event submissions, and
// exposes an /admin control plane for tests and manual runs.
package twin

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// DefaultPort is used when neither -port nor PORT is set.
const DefaultPort = 12180

// Config holds the twin's runtime settings, parsed from CLI flags.
type Config struct {
	Port     int
	Latency  time.Duration
	FailRate float64
	SeedFile string
	Verbose  bool
	Name     string
}

// ParseFlags parses args into a Config. PORT is consulted when -port is unset.
func ParseFlags(name string, args []string) (*Config, error) {
	cfg := &Config{Name: name}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", 0, "HTTP listen port")
	fs.DurationVar(&cfg.Latency, "latency", 0, "Base simulated latency")
	fs.Float64Var(&cfg.FailRate, "fail-rate", 0.0, "Random failure rate 0.0-1.0")
	fs.StringVar(&cfg.SeedFile, "seed-file", "", "Path to JSON domain map loaded at startup")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable request logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		if p := os.Getenv("PORT"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", p, err)
			}
			cfg.Port = n
		}
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.FailRate < 0 || cfg.FailRate > 1 {
		return nil, fmt.Errorf("fail-rate must be between 0.0 and 1.0")
	}
	return cfg, nil
}

// Twin is the collector simulator: a chi router with request recording, the
// collector routes (behind simulated network conditions and faults) and the
// admin routes mounted.
type Twin struct {
	Config *Config
	Router *chi.Mux
	Logger *slog.Logger
	Store  *Store
	mw     *Middleware
}

// New builds a Twin. A nil logger gets a JSON handler on stdout, at debug
// level when cfg.Verbose is set.
func New(cfg *Config, logger *slog.Logger) *Twin {
	if logger == nil {
		level := slog.LevelInfo
		if cfg.Verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}

	r := chi.NewRouter()
	mw := NewMiddleware(cfg, logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Record)

	t := &Twin{
		Config: cfg,
		Router: r,
		Logger: logger,
		Store:  NewStore(),
		mw:     mw,
	}
	newCollector(t.Store, mw, logger).Routes(r)
	newAdmin(t.Store, mw).Routes(r)
	return t
}

// Middleware returns the traffic log and fault table, for direct fault injection.
func (t *Twin) Middleware() *Middleware { return t.mw }

// LoadSeed reads a JSON object of domain -> geo domain from path.
func (t *Twin) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var domains map[string]string
	if err := json.Unmarshal(data, &domains); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}
	for d, g := range domains {
		t.Store.SetGeoDomain(d, g)
	}
	return nil
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (t *Twin) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", t.Config.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      t.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.Logger.Info("starting twin", "name", t.Config.Name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	t.Logger.Info("shutting down twin", "name", t.Config.Name)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeHTTP implements http.Handler so a Twin can back an httptest.Server.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.Router.ServeHTTP(w, r)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
