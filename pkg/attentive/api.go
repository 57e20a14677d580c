// Package attentive is the public entry point: API sends single events and
// Tracker layers the current user and account domain on top of it.
package attentive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/dispatch"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/geo"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/mapper"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/wire"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/events"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// Callback receives the single outcome of a send.
type Callback = dispatch.Callback

// CallbackFuncs adapts plain functions to Callback. Nil fields are no-ops.
type CallbackFuncs struct {
	Success func()
	Failure func(message string)
}

func (c CallbackFuncs) OnSuccess() {
	if c.Success != nil {
		c.Success()
	}
}

func (c CallbackFuncs) OnFailure(message string) {
	if c.Failure != nil {
		c.Failure(message)
	}
}

// Config configures an API. Zero values use the production hosts and
// default clients.
type Config struct {
	CDNBaseURL    string
	EventsBaseURL string
	// HTTPClient is used for domain resolution and, unless Transport is set,
	// for event submission.
	HTTPClient *http.Client
	Transport  dispatch.Transport
	UserAgent  string
	Logger     *slog.Logger
}

// API resolves the geo domain, maps events and dispatches them. Construct one
// per process and share it.
type API struct {
	cfg        Config
	resolver   *geo.Resolver
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewAPI creates an API.
func NewAPI(cfg Config) *API {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	transport := cfg.Transport
	if transport == nil && cfg.HTTPClient != nil {
		transport = dispatch.ClientTransport{Client: cfg.HTTPClient}
	}
	return &API{
		cfg:      cfg,
		resolver: newResolver(cfg),
		dispatcher: dispatch.New(dispatch.Config{
			EventsBaseURL: cfg.EventsBaseURL,
			Transport:     transport,
			UserAgent:     cfg.UserAgent,
			Logger:        cfg.Logger,
		}),
		logger: cfg.Logger,
	}
}

func newResolver(cfg Config) *geo.Resolver {
	return geo.New(geo.Config{
		CDNBaseURL: cfg.CDNBaseURL,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
}

// withFreshResolver returns an API sharing a's dispatcher but with an empty
// domain cache.
func (a *API) withFreshResolver() *API {
	return &API{
		cfg:        a.cfg,
		resolver:   newResolver(a.cfg),
		dispatcher: a.dispatcher,
		logger:     a.logger,
	}
}

// DomainState reports the geo-domain resolution state.
func (a *API) DomainState() geo.State { return a.resolver.State() }

// Stats returns dispatcher counters.
func (a *API) Stats() dispatch.Stats { return a.dispatcher.Stats() }

// ResolveDomain resolves the geo domain synchronously.
func (a *API) ResolveDomain(ctx context.Context, domain string) (string, error) {
	return a.resolver.Resolve(ctx, domain)
}

// SendEvent maps ev and sends the resulting requests for domain. It returns
// immediately; cb, if non-nil, is called exactly once. An items-bearing event
// with no items sends nothing and reports success.
func (a *API) SendEvent(ev events.Event, ids identity.UserIdentifiers, domain string, cb Callback) {
	reqs, err := a.mapEvent(ev, ids)
	if err != nil {
		a.logger.Error("failed to map event", "err", err)
		notify(a.logger, cb, err.Error())
		return
	}
	if len(reqs) == 0 {
		a.logger.Info("event has no items, skipping", "event", ev.Name())
		notify(a.logger, cb, "")
		return
	}
	a.send(reqs, ids, domain, cb)
}

// SendUserIdentifiersCollectedEvent announces ids to the collector.
func (a *API) SendUserIdentifiersCollectedEvent(domain string, ids identity.UserIdentifiers, cb Callback) {
	a.send([]wire.EventRequest{mapper.MapIdentifiersCollected(ids)}, ids, domain, cb)
}

func (a *API) mapEvent(ev events.Event, ids identity.UserIdentifiers) (reqs []wire.EventRequest, err error) {
	defer func() {
		if r := recover(); r != nil {
			reqs, err = nil, fmt.Errorf("mapping event: %v", r)
		}
	}()
	if ev == nil {
		return nil, fmt.Errorf("event is nil")
	}
	return mapper.Map(ev, ids)
}

func (a *API) send(reqs []wire.EventRequest, ids identity.UserIdentifiers, domain string, cb Callback) {
	go func() {
		handedOff := false
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("event send panicked", "panic", fmt.Sprint(r))
				if !handedOff {
					notify(a.logger, cb, fmt.Sprintf("internal error: %v", r))
				}
			}
		}()

		target := a.resolveOrFallback(domain)
		handedOff = true
		a.dispatcher.DispatchAll(reqs, ids, target, cb)
	}()
}

func (a *API) resolveOrFallback(domain string) string {
	geoDomain, err := a.resolver.Resolve(context.Background(), domain)
	if err != nil {
		a.logger.Warn("geo domain resolution failed, using original domain", "domain", domain, "err", err)
		return domain
	}
	return geoDomain
}

// notify reports failure when message is non-empty and success otherwise.
func notify(logger *slog.Logger, cb Callback, message string) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	if message == "" {
		cb.OnSuccess()
		return
	}
	cb.OnFailure(message)
}
