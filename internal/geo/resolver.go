// Package geo resolves the geo-adjusted routing domain for an account and
// caches it for the lifetime of the Resolver.
package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultCDNBaseURL hosts the per-account tag script.
const DefaultCDNBaseURL = "https://cdn.attn.tv"

// maxTagBytes bounds how much of the tag script is read.
const maxTagBytes = 4 << 20

var domainPattern = regexp.MustCompile(`='([a-z0-9-]+)\.attn\.tv'`)

// State is where a Resolver is in its one-time resolution.
type State int32

const (
	Unresolved State = iota
	Resolving
	Resolved
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ResolutionError reports why a geo domain could not be resolved.
type ResolutionError struct {
	Domain string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve geo domain for %q: %s: %v", e.Domain, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve geo domain for %q: %s", e.Domain, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// IsResolutionError reports whether err is (or wraps) a *ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// Config configures a Resolver.
type Config struct {
	CDNBaseURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Resolver fetches the account tag script and extracts the geo domain.
//
// The cache is a single slot for the whole Resolver, not one per input
// domain: once any resolution succeeds, every later Resolve returns that
// value. Callers racing before the first success may each fetch; the first
// result stored wins.
type Resolver struct {
	cdnBaseURL string
	http       *http.Client
	logger     *slog.Logger
	cached     atomic.Pointer[string]
	inflight   atomic.Int32
	fetches    atomic.Int64
}

// New creates a Resolver. HTTPClient defaults to a 5-second-timeout client.
func New(cfg Config) *Resolver {
	if cfg.CDNBaseURL == "" {
		cfg.CDNBaseURL = DefaultCDNBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		cdnBaseURL: strings.TrimRight(cfg.CDNBaseURL, "/"),
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Cached returns the resolved domain, if resolution has succeeded.
func (r *Resolver) Cached() (string, bool) {
	if p := r.cached.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// State reports Resolved once a value is cached, Resolving while a fetch is
// in flight, and Unresolved otherwise.
func (r *Resolver) State() State {
	if r.cached.Load() != nil {
		return Resolved
	}
	if r.inflight.Load() > 0 {
		return Resolving
	}
	return Unresolved
}

// Fetches returns how many tag-script requests this Resolver has issued.
func (r *Resolver) Fetches() int64 { return r.fetches.Load() }

// Resolve returns the geo-adjusted domain for domain, fetching it on first use.
// Failures are *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, domain string) (string, error) {
	if geo, ok := r.Cached(); ok {
		return geo, nil
	}

	r.inflight.Add(1)
	defer r.inflight.Add(-1)

	geo, err := r.fetch(ctx, domain)
	if err != nil {
		return "", err
	}
	if !r.cached.CompareAndSwap(nil, &geo) {
		winner, _ := r.Cached()
		return winner, nil
	}
	r.logger.Debug("resolved geo domain", "domain", domain, "geo_domain", geo)
	return geo, nil
}

func (r *Resolver) fetch(ctx context.Context, domain string) (string, error) {
	if strings.TrimSpace(domain) == "" {
		return "", &ResolutionError{Domain: domain, Reason: "empty domain"}
	}
	target := fmt.Sprintf("%s/%s/dtag.js", r.cdnBaseURL, url.PathEscape(domain))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &ResolutionError{Domain: domain, Reason: "create request", Err: err}
	}

	r.fetches.Add(1)
	resp, err := r.http.Do(req)
	if err != nil {
		return "", &ResolutionError{Domain: domain, Reason: "fetch tag", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", &ResolutionError{Domain: domain, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTagBytes))
	if err != nil {
		return "", &ResolutionError{Domain: domain, Reason: "read tag", Err: err}
	}
	if len(body) == 0 {
		return "", &ResolutionError{Domain: domain, Reason: "empty tag body"}
	}

	geo, ok := ExtractDomain(string(body))
	if !ok {
		return "", &ResolutionError{Domain: domain, Reason: "no geo domain in tag"}
	}
	return geo, nil
}

// ExtractDomain finds the ='<token>.attn.tv' assignment in a tag script and
// returns token.
func ExtractDomain(tag string) (string, bool) {
	m := domainPattern.FindStringSubmatch(tag)
	if m == nil {
		return "", false
	}
	return m[1], true
}
