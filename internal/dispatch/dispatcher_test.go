package dispatch

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/wire"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type recorder struct {
	successes atomic.Int32
	failures  atomic.Int32
	mu        sync.Mutex
	messages  []string
	first     chan struct{}
	once      sync.Once
}

func newRecorder() *recorder { return &recorder{first: make(chan struct{})} }

func (r *recorder) OnSuccess() {
	r.successes.Add(1)
	r.once.Do(func() { close(r.first) })
}

func (r *recorder) OnFailure(msg string) {
	r.failures.Add(1)
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.once.Do(func() { close(r.first) })
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.first:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	// Give any erroneous second notification time to land.
	time.Sleep(50 * time.Millisecond)
}

func (r *recorder) total() int32 { return r.successes.Load() + r.failures.Load() }

// fakeTransport hands each completion back to the test instead of sending.
type fakeTransport struct {
	mu    sync.Mutex
	reqs  []*http.Request
	dones []func(*http.Response, error)
}

func (f *fakeTransport) Send(req *http.Request, done func(*http.Response, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	f.dones = append(f.dones, done)
}

func response(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func infoRequests(n int) []wire.EventRequest {
	reqs := make([]wire.EventRequest, n)
	for i := range reqs {
		reqs[i] = wire.NewEventRequest(&wire.InfoMetadata{BaseMetadata: wire.NewBase()}, nil)
	}
	return reqs
}

func collector(t *testing.T, status int) (*httptest.Server, *atomic.Int32, *[]*url.URL) {
	t.Helper()
	var hits atomic.Int32
	var mu sync.Mutex
	var urls []*url.URL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		urls = append(urls, r.URL)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, &urls
}

// ---------------------------------------------------------------------------
// BuildURL
// ---------------------------------------------------------------------------

func TestBuildURLFixedParams(t *testing.T) {
	d := New(Config{EventsBaseURL: "https://events.example.com/"})
	ids := identity.New(identity.WithVisitorID("visitor-1"), identity.WithClientUserID("c1"))
	evs, _ := identity.EncodeVendorIDs(ids)

	req := wire.NewEventRequest(&wire.InfoMetadata{BaseMetadata: wire.NewBase()}, map[string]string{"pd": "https://shop/x?a=b", "t": "override"})
	raw, err := d.BuildURL(req, ids, "mystore-geo", evs)
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	if !strings.HasPrefix(raw, "https://events.example.com/e?tag=modern&v=mobile-app&lt=0&c=mystore-geo&t=i&u=visitor-1&evs=") {
		t.Errorf("unexpected URL prefix: %s", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	q := u.Query()
	want := map[string]string{
		"tag": "modern", "v": "mobile-app", "lt": "0", "c": "mystore-geo", "t": "i", "u": "visitor-1",
		"evs": `[{"vendor":"2","id":"c1"}]`, "m": `{"source":"msdk"}`, "pd": "https://shop/x?a=b",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("param %s: expected %q, got %q", k, v, q.Get(k))
		}
	}
	if len(q["t"]) != 1 {
		t.Errorf("extra params must not override fixed ones, got t=%v", q["t"])
	}
}

func TestBuildURLNilMetadata(t *testing.T) {
	d := New(Config{})
	if _, err := d.BuildURL(wire.EventRequest{Type: wire.TypeInfo}, identity.UserIdentifiers{}, "d", "[]"); err == nil {
		t.Error("expected error for nil metadata")
	}
}

// ---------------------------------------------------------------------------
// DispatchAll over HTTP
// ---------------------------------------------------------------------------

func TestDispatchAllSuccess(t *testing.T) {
	srv, hits, urls := collector(t, http.StatusNoContent)
	d := New(Config{EventsBaseURL: srv.URL, UserAgent: "test-agent/1.0"})
	rec := newRecorder()

	d.DispatchAll(infoRequests(4), identity.New(identity.WithVisitorID("v")), "dom", rec)
	rec.wait(t)

	if rec.successes.Load() != 1 || rec.failures.Load() != 0 {
		t.Errorf("expected exactly one success, got %d successes / %d failures", rec.successes.Load(), rec.failures.Load())
	}
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hits.Load() != 4 {
		t.Errorf("expected 4 requests, got %d", hits.Load())
	}
	if (*urls)[0].Path != "/e" {
		t.Errorf("expected path /e, got %s", (*urls)[0].Path)
	}
}

func TestDispatchAllHTTPFailureMessage(t *testing.T) {
	srv, _, _ := collector(t, http.StatusServiceUnavailable)
	d := New(Config{EventsBaseURL: srv.URL})
	rec := newRecorder()

	d.DispatchAll(infoRequests(3), identity.UserIdentifiers{}, "dom", rec)
	rec.wait(t)

	if rec.total() != 1 || rec.failures.Load() != 1 {
		t.Fatalf("expected exactly one failure, got %d successes / %d failures", rec.successes.Load(), rec.failures.Load())
	}
	if rec.messages[0] != "503 Service Unavailable" {
		t.Errorf("expected '503 Service Unavailable', got %q", rec.messages[0])
	}
}

func TestDispatchAllTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	d := New(Config{EventsBaseURL: base})
	rec := newRecorder()
	d.DispatchAll(infoRequests(2), identity.UserIdentifiers{}, "dom", rec)
	rec.wait(t)

	if rec.failures.Load() != 1 || rec.total() != 1 {
		t.Fatalf("expected exactly one failure, got %d successes / %d failures", rec.successes.Load(), rec.failures.Load())
	}
	if rec.messages[0] == "" {
		t.Error("expected a transport error message")
	}
}

func TestDispatchAllNilCallbackStillSends(t *testing.T) {
	srv, hits, _ := collector(t, http.StatusOK)
	d := New(Config{EventsBaseURL: srv.URL})

	d.DispatchAll(infoRequests(3), identity.UserIdentifiers{}, "dom", nil)

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
	if d.Stats().Notified != 0 {
		t.Errorf("expected no notifications, got %d", d.Stats().Notified)
	}
}

func TestDispatchAllEmptyBatch(t *testing.T) {
	ft := &fakeTransport{}
	d := New(Config{Transport: ft})
	rec := newRecorder()

	d.DispatchAll(nil, identity.UserIdentifiers{}, "dom", rec)
	rec.wait(t)

	if rec.successes.Load() != 1 || rec.total() != 1 {
		t.Errorf("expected one success for empty batch, got %d/%d", rec.successes.Load(), rec.failures.Load())
	}
	if len(ft.reqs) != 0 {
		t.Errorf("expected no requests, got %d", len(ft.reqs))
	}
}

// ---------------------------------------------------------------------------
// Aggregation under arbitrary completion order
// ---------------------------------------------------------------------------

func TestDispatchAllFirstOutcomeWins(t *testing.T) {
	tests := []struct {
		name     string
		order    []int // status codes in completion order
		wantOK   bool
		wantText string
	}{
		{"failure first", []int{500, 200, 200}, false, "Internal Server Error"},
		{"success first", []int{200, 500, 500}, true, ""},
		{"all failures", []int{404, 500, 503}, false, "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			d := New(Config{Transport: ft})
			rec := newRecorder()

			d.DispatchAll(infoRequests(len(tt.order)), identity.UserIdentifiers{}, "dom", rec)
			if len(ft.dones) != len(tt.order) {
				t.Fatalf("expected %d sends, got %d", len(tt.order), len(ft.dones))
			}
			for i, code := range tt.order {
				ft.dones[i](response(code), nil)
			}
			rec.wait(t)

			if rec.total() != 1 {
				t.Fatalf("expected exactly one notification, got %d", rec.total())
			}
			if (rec.successes.Load() == 1) != tt.wantOK {
				t.Errorf("expected ok=%v", tt.wantOK)
			}
			if !tt.wantOK && rec.messages[0] != tt.wantText {
				t.Errorf("expected message %q, got %q", tt.wantText, rec.messages[0])
			}
		})
	}
}

func TestDispatchAllDuplicateAndConcurrentCompletions(t *testing.T) {
	for run := 0; run < 20; run++ {
		ft := &fakeTransport{}
		d := New(Config{Transport: ft})
		rec := newRecorder()

		const n = 5
		d.DispatchAll(infoRequests(n), identity.UserIdentifiers{}, "dom", rec)

		var wg sync.WaitGroup
		for i, done := range ft.dones {
			for dup := 0; dup < 3; dup++ {
				wg.Add(1)
				go func(i int, done func(*http.Response, error)) {
					defer wg.Done()
					if i%2 == 0 {
						done(response(http.StatusOK), nil)
					} else {
						done(nil, errors.New("connection reset"))
					}
				}(i, done)
			}
		}
		wg.Wait()
		rec.wait(t)

		if rec.total() != 1 {
			t.Fatalf("run %d: expected exactly one notification, got %d successes / %d failures",
				run, rec.successes.Load(), rec.failures.Load())
		}
		if d.Stats().Notified != 1 {
			t.Fatalf("run %d: expected Notified=1, got %d", run, d.Stats().Notified)
		}
		if got := d.Stats().Discarded; got != n*3-1 {
			t.Fatalf("run %d: expected %d discarded outcomes, got %d", run, n*3-1, got)
		}
	}
}

func TestDispatchAllCallbackPanicIsContained(t *testing.T) {
	ft := &fakeTransport{}
	d := New(Config{Transport: ft})

	called := make(chan struct{})
	d.DispatchAll(infoRequests(1), identity.UserIdentifiers{}, "dom", panicky{called})
	ft.dones[0](response(http.StatusOK), nil)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

type panicky struct{ called chan struct{} }

func (p panicky) OnSuccess() {
	close(p.called)
	panic("boom")
}
func (p panicky) OnFailure(string) {}

type badMetadata struct{ wire.BaseMetadata }

func (*badMetadata) EventType() wire.EventType { return wire.TypeInfo }
func (*badMetadata) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot encode")
}

func TestDispatchAllMetadataEncodeFailureIsReported(t *testing.T) {
	ft := &fakeTransport{}
	d := New(Config{Transport: ft})
	rec := newRecorder()

	d.DispatchAll([]wire.EventRequest{wire.NewEventRequest(&badMetadata{}, nil)}, identity.UserIdentifiers{}, "dom", rec)
	rec.wait(t)

	if rec.failures.Load() != 1 || rec.total() != 1 {
		t.Fatalf("expected one failure, got %d/%d", rec.successes.Load(), rec.failures.Load())
	}
	if !strings.Contains(rec.messages[0], "cannot encode") {
		t.Errorf("expected encode error text, got %q", rec.messages[0])
	}
	if len(ft.reqs) != 0 {
		t.Errorf("expected nothing sent, got %d", len(ft.reqs))
	}
	if d.Stats().BuildFails != 1 {
		t.Errorf("expected 1 build failure, got %d", d.Stats().BuildFails)
	}
}

func TestStatsCountsCompletions(t *testing.T) {
	ft := &fakeTransport{}
	d := New(Config{Transport: ft})
	rec := newRecorder()

	d.DispatchAll(infoRequests(3), identity.UserIdentifiers{}, "dom", rec)
	ft.dones[0](response(200), nil)
	ft.dones[1](response(500), nil)
	ft.dones[2](nil, errors.New("timeout"))
	rec.wait(t)

	s := d.Stats()
	if s.Batches != 1 || s.Sent != 3 || s.Succeeded != 1 || s.Failed != 2 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.Notified != 1 || s.Discarded != 2 {
		t.Errorf("expected 1 notified and 2 discarded outcomes, got %+v", s)
	}
}

func TestSentRequestsArePostWithEmptyBody(t *testing.T) {
	ft := &fakeTransport{}
	d := New(Config{Transport: ft, UserAgent: "ua/1"})
	d.DispatchAll(infoRequests(1), identity.UserIdentifiers{}, "dom", nil)

	req := ft.reqs[0]
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if req.ContentLength != 0 {
		t.Errorf("expected empty body, got length %d", req.ContentLength)
	}
	if req.Header.Get("User-Agent") != "ua/1" {
		t.Errorf("expected user agent, got %q", req.Header.Get("User-Agent"))
	}
}
