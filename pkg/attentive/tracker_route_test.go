package attentive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/twin/twintest"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/events"
)

type countdown struct{ wg *sync.WaitGroup }

func (c countdown) OnSuccess()       { c.wg.Done() }
func (c countdown) OnFailure(string) { c.wg.Done() }

func TestChangeDomainKeepsRouteConsistent(t *testing.T) {
	srv, _ := twintest.Start(t)
	admin := twintest.NewAdminClient(twintest.NewClient(t, srv))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := NewAPI(Config{CDNBaseURL: srv.URL, EventsBaseURL: srv.URL, HTTPClient: srv.Client(), Logger: logger})

	ctx := context.Background()
	tr, err := NewTracker(ctx, api, TrackerConfig{Domain: "store-0", Logger: logger})
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if _, err := tr.API().ResolveDomain(ctx, "store-0"); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	const changes = 20
	stop := make(chan struct{})
	var sends sync.WaitGroup
	var readers sync.WaitGroup

	// Every snapshot must resolve to its own account's geo domain.
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				rt := tr.route.Load()
				geo, err := rt.api.ResolveDomain(ctx, rt.domain)
				if err != nil {
					t.Errorf("resolve %s: %v", rt.domain, err)
					return
				}
				if geo != rt.domain+"-geo" {
					t.Errorf("route for %s resolved to %s", rt.domain, geo)
					return
				}
			}
		}()
	}

	readers.Add(1)
	go func() {
		defer readers.Done()
		ce, _ := events.NewCustomEvent("tick", nil)
		for {
			select {
			case <-stop:
				return
			default:
			}
			sends.Add(1)
			tr.RecordEvent(ce, countdown{&sends})
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 1; i <= changes; i++ {
		sends.Add(1)
		if err := tr.ChangeDomain(fmt.Sprintf("store-%d", i), countdown{&sends}); err != nil {
			t.Fatalf("ChangeDomain: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	close(stop)
	readers.Wait()
	sends.Wait()

	known := make(map[string]bool, changes+1)
	for i := 0; i <= changes; i++ {
		known[fmt.Sprintf("store-%d-geo", i)] = true
	}
	captured := admin.Events(nil)
	if len(captured) == 0 {
		t.Fatal("expected captured events")
	}
	for _, c := range captured {
		if !known[c.Domain] || !strings.HasSuffix(c.Domain, "-geo") {
			t.Errorf("event %s sent to unexpected domain %q", c.Type, c.Domain)
		}
	}
	if got := tr.Domain(); got != fmt.Sprintf("store-%d", changes) {
		t.Errorf("expected final domain store-%d, got %s", changes, got)
	}
}
