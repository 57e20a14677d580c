package twin

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/dispatch"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/wire"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// collector serves the tag script and accepts event submissions.
type collector struct {
	store  *Store
	mw     *Middleware
	logger *slog.Logger
}

func newCollector(s *Store, mw *Middleware, logger *slog.Logger) *collector {
	return &collector{store: s, mw: mw, logger: logger}
}

func (c *collector) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(c.mw.Simulate)
		r.Use(c.mw.InjectFaults)

		r.Get("/{domain}/dtag.js", c.Tag)
		r.Post("/e", c.Collect)
	})
}

// Tag handles GET /{domain}/dtag.js.
func (c *collector) Tag(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	c.store.CountTagFetch()

	w.Header().Set("Content-Type", "application/javascript")
	geo := c.store.GeoDomain(domain)
	if geo == "" {
		fmt.Fprintf(w, "(function(){window.__attn={account:'%s'};})();\n", domain)
		return
	}
	fmt.Fprintf(w, "(function(){window.__attn={account:'%s'};window.__attn.host='%s.attn.tv';})();\n", domain, geo)
}

// Collect handles POST /e. It rejects requests a real collector would not
// accept: wrong fixed params, unknown types, or undecodable metadata.
func (c *collector) Collect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get(dispatch.ParamTag) != "modern" || q.Get(dispatch.ParamVersion) != "mobile-app" || q.Get(dispatch.ParamLt) != "0" {
		Error(w, http.StatusBadRequest, "missing or invalid tag/v/lt parameters")
		return
	}
	t := wire.EventType(q.Get(dispatch.ParamType))
	if !t.Valid() {
		Error(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", t))
		return
	}
	if q.Get(dispatch.ParamDomain) == "" {
		Error(w, http.StatusBadRequest, "missing domain")
		return
	}
	m := q.Get(dispatch.ParamMetadata)
	if _, err := wire.DecodeMetadata(t, []byte(m)); err != nil {
		Error(w, http.StatusBadRequest, "invalid metadata: "+err.Error())
		return
	}
	evs := q.Get(dispatch.ParamVendorIDs)
	if _, err := identity.DecodeVendorIDs(evs); err != nil {
		Error(w, http.StatusBadRequest, "invalid external vendor ids: "+err.Error())
		return
	}

	captured := CapturedRequest{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		Type:       string(t),
		Domain:     q.Get(dispatch.ParamDomain),
		VisitorID:  q.Get(dispatch.ParamVisitorID),
		VendorIDs:  evs,
		Metadata:   m,
		Extra:      extraParams(q),
		UserAgent:  r.UserAgent(),
	}
	c.store.Add(captured)
	c.logger.Debug("captured event", "id", captured.ID, "type", captured.Type, "domain", captured.Domain)

	w.WriteHeader(http.StatusNoContent)
}

func extraParams(q url.Values) map[string]string {
	var out map[string]string
	for k, v := range q {
		switch k {
		case dispatch.ParamTag, dispatch.ParamVersion, dispatch.ParamLt, dispatch.ParamDomain,
			dispatch.ParamType, dispatch.ParamVisitorID, dispatch.ParamVendorIDs, dispatch.ParamMetadata:
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = strings.Join(v, ",")
	}
	return out
}
