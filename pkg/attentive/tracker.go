package attentive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/storage"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/visitor"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/events"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// ErrEmptyDomain is returned when a tracker is given a blank account domain.
var ErrEmptyDomain = errors.New("domain must not be empty")

// TrackerConfig configures a Tracker. Storage defaults to an in-memory store.
type TrackerConfig struct {
	Domain  string
	Storage storage.Storage
	Logger  *slog.Logger
}

// route pairs an account domain with the API whose resolver serves it. It is
// replaced as a whole so a send never mixes one account's domain with
// another's cached geo domain.
type route struct {
	api    *API
	domain string
}

// Tracker sends events on behalf of the current user. It owns the visitor id
// and the account domain; identifiers are replaced as a whole, never mutated.
type Tracker struct {
	visitors *visitor.Service
	logger   *slog.Logger

	// mu serialises read-modify-write updates of ids and route.
	mu    sync.Mutex
	ids   atomic.Pointer[identity.UserIdentifiers]
	route atomic.Pointer[route]
}

// NewTracker loads (or creates) the visitor id and returns a Tracker for
// cfg.Domain.
func NewTracker(ctx context.Context, api *API, cfg TrackerConfig) (*Tracker, error) {
	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Tracker{
		visitors: visitor.New(cfg.Storage, cfg.Logger),
		logger:   cfg.Logger,
	}
	t.route.Store(&route{api: api, domain: domain})

	vid, err := t.visitors.ID(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing visitor: %w", err)
	}
	ids := identity.New(identity.WithVisitorID(vid))
	t.ids.Store(&ids)
	return t, nil
}

// Identifiers returns the current user identifiers.
func (t *Tracker) Identifiers() identity.UserIdentifiers { return *t.ids.Load() }

// Domain returns the current account domain.
func (t *Tracker) Domain() string { return t.route.Load().domain }

// API returns the API events are currently sent through.
func (t *Tracker) API() *API { return t.route.Load().api }

// Start sends the initialization ping.
func (t *Tracker) Start(cb Callback) {
	t.RecordEvent(events.Info{}, cb)
}

// RecordEvent sends ev for the current user and domain.
func (t *Tracker) RecordEvent(ev events.Event, cb Callback) {
	rt := t.route.Load()
	rt.api.SendEvent(ev, t.Identifiers(), rt.domain, cb)
}

// Identify merges ids into the current identifiers and announces the result.
// The visitor id is never replaced by Identify.
func (t *Tracker) Identify(ids identity.UserIdentifiers, cb Callback) {
	t.mu.Lock()
	current := t.Identifiers()
	merged := identity.Merge(current, ids)
	merged = identity.Merge(merged, identity.New(identity.WithVisitorID(current.VisitorID())))
	t.ids.Store(&merged)
	t.mu.Unlock()

	rt := t.route.Load()
	rt.api.SendUserIdentifiersCollectedEvent(rt.domain, merged, cb)
}

// ClearUser forgets the identified user and starts a new visitor.
func (t *Tracker) ClearUser(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	vid, err := t.visitors.Rotate(ctx)
	if err != nil {
		return fmt.Errorf("rotating visitor: %w", err)
	}
	ids := identity.New(identity.WithVisitorID(vid))
	t.ids.Store(&ids)
	t.logger.Info("user cleared", "visitor_id", vid)
	return nil
}

// ChangeDomain switches the account domain and sends an initialization ping
// for it. The geo domain is resolved afresh for the new account. Changing to
// the current domain is a no-op and cb is not called.
func (t *Tracker) ChangeDomain(domain string, cb Callback) error {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ErrEmptyDomain
	}

	t.mu.Lock()
	current := t.route.Load()
	if domain == current.domain {
		t.mu.Unlock()
		return nil
	}
	next := &route{api: current.api.withFreshResolver(), domain: domain}
	t.route.Store(next)
	t.mu.Unlock()

	t.logger.Info("domain changed", "domain", domain)
	next.api.SendEvent(events.Info{}, t.Identifiers(), next.domain, cb)
	return nil
}
