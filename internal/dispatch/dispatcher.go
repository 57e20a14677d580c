// Package dispatch sends the wire requests of one logical send and reduces
// their completions to a single success-or-failure notification.
package dispatch

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/wire"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// DefaultEventsBaseURL is the collector host.
const DefaultEventsBaseURL = "https://events.attentivemobile.com"

// Fixed query parameters carried by every event request.
const (
	ParamTag       = "tag"
	ParamVersion   = "v"
	ParamLt        = "lt"
	ParamDomain    = "c"
	ParamType      = "t"
	ParamVisitorID = "u"
	ParamVendorIDs = "evs"
	ParamMetadata  = "m"
)

var fixedParams = map[string]bool{
	ParamTag: true, ParamVersion: true, ParamLt: true, ParamDomain: true,
	ParamType: true, ParamVisitorID: true, ParamVendorIDs: true, ParamMetadata: true,
}

// Callback receives the outcome of one DispatchAll: exactly one of its
// methods is called, once.
type Callback interface {
	OnSuccess()
	OnFailure(message string)
}

// Transport sends a request and reports completion through done. done may run
// on any goroutine, and a faulty transport may call it more than once.
type Transport interface {
	Send(req *http.Request, done func(*http.Response, error))
}

// ClientTransport sends each request on its own goroutine with an http.Client.
type ClientTransport struct {
	Client *http.Client
}

// Send implements Transport.
func (t ClientTransport) Send(req *http.Request, done func(*http.Response, error)) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	go func() {
		resp, err := client.Do(req)
		done(resp, err)
	}()
}

// Config configures a Dispatcher.
type Config struct {
	EventsBaseURL string
	Transport     Transport
	UserAgent     string
	Logger        *slog.Logger
}

// Stats counts dispatcher activity since creation.
type Stats struct {
	Batches    int64 `json:"batches"`
	Sent       int64 `json:"sent"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	// Discarded counts outcomes dropped because an earlier one was delivered.
	Discarded  int64 `json:"discarded"`
	Notified   int64 `json:"notified"`
	BuildFails int64 `json:"build_failures"`
}

// Dispatcher turns wire requests into HTTP calls on a Transport.
type Dispatcher struct {
	eventsURL string
	transport Transport
	userAgent string
	logger    *slog.Logger

	batches    atomic.Int64
	sent       atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	discarded  atomic.Int64
	notified   atomic.Int64
	buildFails atomic.Int64
}

// New creates a Dispatcher. Transport defaults to a ClientTransport with a
// 30-second timeout.
func New(cfg Config) *Dispatcher {
	if cfg.EventsBaseURL == "" {
		cfg.EventsBaseURL = DefaultEventsBaseURL
	}
	if cfg.Transport == nil {
		cfg.Transport = ClientTransport{Client: &http.Client{Timeout: 30 * time.Second}}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		eventsURL: strings.TrimRight(cfg.EventsBaseURL, "/") + "/e",
		transport: cfg.Transport,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Batches:    d.batches.Load(),
		Sent:       d.sent.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		Discarded:  d.discarded.Load(),
		Notified:   d.notified.Load(),
		BuildFails: d.buildFails.Load(),
	}
}

type outcome struct {
	ok      bool
	message string
}

// DispatchAll sends every request concurrently and returns without waiting.
// cb, if non-nil, is notified exactly once with the first outcome observed;
// every later outcome is dropped. An empty batch notifies success.
func (d *Dispatcher) DispatchAll(reqs []wire.EventRequest, ids identity.UserIdentifiers, domain string, cb Callback) {
	d.batches.Add(1)

	// Only the first outcome reaches the channel; the single reader below is
	// the only caller of cb.
	results := make(chan outcome, 1)
	var reported atomic.Int32
	report := func(o outcome) {
		if reported.Add(1) > 1 {
			d.discarded.Add(1)
			return
		}
		results <- o
	}
	if cb != nil {
		go d.deliver(results, cb)
	}

	if len(reqs) == 0 {
		report(outcome{ok: true})
		return
	}

	evs := d.encodeVendorIDs(ids)
	for _, r := range reqs {
		req, err := d.newRequest(r, ids, domain, evs)
		if err != nil {
			d.buildFails.Add(1)
			d.logger.Warn("failed to build event request", "type", string(r.Type), "err", err)
			report(outcome{message: err.Error()})
			continue
		}

		d.sent.Add(1)
		eventType := r.Type
		d.transport.Send(req, func(resp *http.Response, err error) {
			o := classify(resp, err)
			if o.ok {
				d.succeeded.Add(1)
			} else {
				d.failed.Add(1)
				d.logger.Debug("event request failed", "type", string(eventType), "err", o.message)
			}
			report(o)
		})
	}
}

func (d *Dispatcher) deliver(results <-chan outcome, cb Callback) {
	o := <-results
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	d.notified.Add(1)
	if o.ok {
		cb.OnSuccess()
		return
	}
	cb.OnFailure(o.message)
}

func classify(resp *http.Response, err error) outcome {
	if err != nil {
		return outcome{message: err.Error()}
	}
	if resp == nil {
		return outcome{message: "no response"}
	}
	if resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return outcome{ok: true}
	}
	return outcome{message: statusMessage(resp)}
}

// statusMessage renders "<status> <statusText>", e.g. "503 Service Unavailable".
func statusMessage(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func (d *Dispatcher) encodeVendorIDs(ids identity.UserIdentifiers) string {
	evs, err := identity.EncodeVendorIDs(ids)
	if err != nil {
		d.logger.Warn("failed to encode external vendor ids, sending none", "err", err)
		return "[]"
	}
	return evs
}

func (d *Dispatcher) newRequest(r wire.EventRequest, ids identity.UserIdentifiers, domain, evs string) (*http.Request, error) {
	target, err := d.BuildURL(r, ids, domain, evs)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	return req, nil
}

// BuildURL renders the full request URL for r. Fixed parameters come first in
// a stable order, followed by r's extra parameters sorted by name; an extra
// parameter never overrides a fixed one.
func (d *Dispatcher) BuildURL(r wire.EventRequest, ids identity.UserIdentifiers, domain, evs string) (string, error) {
	if r.Metadata == nil {
		return "", fmt.Errorf("event request %q has no metadata", string(r.Type))
	}
	m, err := wire.EncodeMetadata(r.Metadata)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(d.eventsURL)
	b.WriteByte('?')
	add := func(k, v string) {
		if b.Len() > len(d.eventsURL)+1 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	add(ParamTag, "modern")
	add(ParamVersion, "mobile-app")
	add(ParamLt, "0")
	add(ParamDomain, domain)
	add(ParamType, string(r.Type))
	add(ParamVisitorID, ids.VisitorID())
	add(ParamVendorIDs, evs)
	add(ParamMetadata, m)

	keys := make([]string, 0, len(r.ExtraParams))
	for k := range r.ExtraParams {
		if !fixedParams[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, r.ExtraParams[k])
	}
	return b.String(), nil
}
