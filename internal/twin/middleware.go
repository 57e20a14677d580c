package twin

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/dispatch"
)

// faultHeader marks responses produced by an injected fault.
const faultHeader = "X-Twin-Fault"

// Hit is one request seen by the twin, as listed by /admin/requests.
type Hit struct {
	At         time.Time `json:"at"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	EventType  string    `json:"t,omitempty"`
	Domain     string    `json:"c,omitempty"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	RequestID  string    `json:"request_id,omitempty"`
	Faulted    bool      `json:"faulted,omitempty"`
}

// Traffic keeps the most recent hits in a fixed-size circular buffer.
type Traffic struct {
	mu   sync.Mutex
	buf  []Hit
	next int
	full bool
}

// NewTraffic creates a buffer holding the last capacity hits.
func NewTraffic(capacity int) *Traffic {
	return &Traffic{buf: make([]Hit, capacity)}
}

// Record stores h, overwriting the oldest hit once the buffer is full.
func (tr *Traffic) Record(h Hit) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.buf[tr.next] = h
	tr.next = (tr.next + 1) % len(tr.buf)
	if tr.next == 0 {
		tr.full = true
	}
}

// Hits returns the buffered hits, oldest first.
func (tr *Traffic) Hits() []Hit {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.full {
		return append([]Hit(nil), tr.buf[:tr.next]...)
	}
	out := make([]Hit, 0, len(tr.buf))
	out = append(out, tr.buf[tr.next:]...)
	return append(out, tr.buf[:tr.next]...)
}

// Clear drops every hit.
func (tr *Traffic) Clear() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	clear(tr.buf)
	tr.next, tr.full = 0, false
}

// Fault makes the collector answer with StatusCode instead of handling the
// request. On /e it can be narrowed to one event type, so a single fan-out
// batch sees mixed outcomes.
type Fault struct {
	StatusCode int     `json:"status_code"`
	Body       string  `json:"body,omitempty"`
	DelayMS    int     `json:"delay_ms,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	EventType  string  `json:"event_type,omitempty"`
	// Times disarms the fault after it fired that often; 0 never disarms.
	Times int `json:"times,omitempty"`
}

// FaultRule is a registered fault together with the path it is armed on.
type FaultRule struct {
	Path string `json:"path"`
	Fault
	Fired int `json:"fired"`
}

type faultKey struct {
	path      string
	eventType string
}

// Faults holds the armed faults, keyed by path and optional event type.
type Faults struct {
	mu    sync.Mutex
	rules map[faultKey]*FaultRule
}

// NewFaults creates an empty fault table.
func NewFaults() *Faults {
	return &Faults{rules: make(map[faultKey]*FaultRule)}
}

// Arm registers f on path, replacing any fault with the same path and event type.
func (fs *Faults) Arm(path string, f Fault) {
	if f.Rate <= 0 || f.Rate > 1 {
		f.Rate = 1
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.rules[faultKey{path, f.EventType}] = &FaultRule{Path: path, Fault: f}
}

// Disarm removes the fault on path for eventType ("" for the untyped one).
func (fs *Faults) Disarm(path, eventType string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	k := faultKey{path, eventType}
	_, ok := fs.rules[k]
	delete(fs.rules, k)
	return ok
}

// Fire returns the fault that applies to a request for path carrying
// eventType, or nil. A typed fault takes precedence over an untyped one.
func (fs *Faults) Fire(path, eventType string) *Fault {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	keys := []faultKey{{path, ""}}
	if eventType != "" {
		keys = []faultKey{{path, eventType}, {path, ""}}
	}
	for _, k := range keys {
		rule, ok := fs.rules[k]
		if !ok {
			continue
		}
		if rule.Rate < 1 && rand.Float64() >= rule.Rate {
			return nil
		}
		rule.Fired++
		if rule.Times > 0 && rule.Fired >= rule.Times {
			delete(fs.rules, k)
		}
		f := rule.Fault
		return &f
	}
	return nil
}

// Rules lists the armed faults ordered by path, then event type.
func (fs *Faults) Rules() []FaultRule {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]FaultRule, 0, len(fs.rules))
	for _, r := range fs.rules {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].EventType < out[j].EventType
	})
	return out
}

// Reset disarms everything.
func (fs *Faults) Reset() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	clear(fs.rules)
}

// Middleware carries the traffic log, the fault table and the simulated
// network conditions from Config.
type Middleware struct {
	cfg     *Config
	logger  *slog.Logger
	Traffic *Traffic
	Faults  *Faults
}

// NewMiddleware creates a Middleware.
func NewMiddleware(cfg *Config, logger *slog.Logger) *Middleware {
	return &Middleware{
		cfg:     cfg,
		logger:  logger,
		Traffic: NewTraffic(1000),
		Faults:  NewFaults(),
	}
}

// Record logs every request into Traffic.
func (m *Middleware) Record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		q := r.URL.Query()
		hit := Hit{
			At:         start,
			Method:     r.Method,
			Path:       r.URL.Path,
			EventType:  q.Get(dispatch.ParamType),
			Domain:     q.Get(dispatch.ParamDomain),
			Status:     status,
			DurationMS: time.Since(start).Milliseconds(),
			RequestID:  chimw.GetReqID(r.Context()),
			Faulted:    ww.Header().Get(faultHeader) != "",
		}
		m.Traffic.Record(hit)
		if m.cfg.Verbose {
			m.logger.Debug("request", "method", hit.Method, "path", hit.Path, "t", hit.EventType, "status", hit.Status, "faulted", hit.Faulted)
		}
	})
}

// Simulate applies the configured latency (with +-20% jitter) and random
// failure rate. Random failures answer 503, the way an overloaded collector
// does.
func (m *Middleware) Simulate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cfg.Latency > 0 {
			time.Sleep(time.Duration(float64(m.cfg.Latency) * (0.8 + rand.Float64()*0.4)))
		}
		if m.cfg.FailRate > 0 && rand.Float64() < m.cfg.FailRate {
			w.Header().Set(faultHeader, "random")
			Error(w, http.StatusServiceUnavailable, "simulated collector outage")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InjectFaults answers with an armed fault when one fires for the request.
// Event submissions are matched on their t parameter as well as the path.
func (m *Middleware) InjectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var eventType string
		if r.URL.Path == "/e" {
			eventType = r.URL.Query().Get(dispatch.ParamType)
		}
		f := m.Faults.Fire(r.URL.Path, eventType)
		if f == nil {
			next.ServeHTTP(w, r)
			return
		}
		if f.DelayMS > 0 {
			time.Sleep(time.Duration(f.DelayMS) * time.Millisecond)
		}
		w.Header().Set(faultHeader, "injected")
		status := f.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		w.WriteHeader(status)
		if f.Body != "" {
			fmt.Fprint(w, f.Body)
		}
	})
}
