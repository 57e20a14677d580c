package twin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/wire"
)

// admin serves the /admin control plane.
type admin struct {
	store *Store
	mw    *Middleware
}

func newAdmin(s *Store, mw *Middleware) *admin {
	return &admin{store: s, mw: mw}
}

func (h *admin) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", h.handleReset)
		r.Get("/events", h.handleListEvents)
		r.Get("/domains", h.handleListDomains)
		r.Post("/domains", h.handleSetDomain)
		r.Post("/fault/*", h.handleInjectFault)
		r.Delete("/fault/*", h.handleRemoveFault)
		r.Get("/faults", h.handleListFaults)
		r.Get("/requests", h.handleGetRequests)
		r.Get("/stats", h.handleStats)
		r.Get("/health", h.handleHealth)
	})
}

func (h *admin) handleReset(w http.ResponseWriter, r *http.Request) {
	h.store.Reset()
	h.mw.Traffic.Clear()
	h.mw.Faults.Reset()
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleListEvents handles GET /admin/events?t={type}&c={domain}&u={visitor}.
func (h *admin) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ, domain, visitor := q.Get("t"), q.Get("c"), q.Get("u")

	events := h.store.Filter(func(c CapturedRequest) bool {
		if typ != "" && c.Type != typ {
			return false
		}
		if domain != "" && c.Domain != domain {
			return false
		}
		if visitor != "" && c.VisitorID != visitor {
			return false
		}
		return true
	})
	if events == nil {
		events = []CapturedRequest{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  len(events),
	})
}

func (h *admin) handleListDomains(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.store.GeoDomains())
}

func (h *admin) handleSetDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		Geo    string `json:"geo"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Domain == "" {
		Error(w, http.StatusBadRequest, "domain is required")
		return
	}
	h.store.SetGeoDomain(req.Domain, req.Geo)
	JSON(w, http.StatusOK, map[string]string{"status": "set", "domain": req.Domain, "geo": req.Geo})
}

func faultPath(r *http.Request) string {
	return "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

// handleInjectFault handles POST /admin/fault/{path}. The body is a Fault;
// event_type narrows a fault on /e to one event type.
func (h *admin) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	path := faultPath(r)

	var fault Fault
	if err := decodeJSON(r.Body, &fault); err != nil {
		Error(w, http.StatusBadRequest, "invalid fault: "+err.Error())
		return
	}
	if fault.EventType != "" && !wire.EventType(fault.EventType).Valid() {
		Error(w, http.StatusBadRequest, "unknown event type "+fault.EventType)
		return
	}
	h.mw.Faults.Arm(path, fault)
	JSON(w, http.StatusOK, map[string]any{
		"status":   "armed",
		"endpoint": path,
		"fault":    fault,
	})
}

// handleRemoveFault handles DELETE /admin/fault/{path}?t={type}.
func (h *admin) handleRemoveFault(w http.ResponseWriter, r *http.Request) {
	path := faultPath(r)
	eventType := r.URL.Query().Get("t")
	if h.mw.Faults.Disarm(path, eventType) {
		JSON(w, http.StatusOK, map[string]any{"status": "removed", "endpoint": path, "event_type": eventType})
		return
	}
	Error(w, http.StatusNotFound, "no fault armed for "+path)
}

func (h *admin) handleListFaults(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.mw.Faults.Rules())
}

func (h *admin) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.mw.Traffic.Hits())
}

func (h *admin) handleStats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"tag_fetches": h.store.TagFetches(),
		"events":      h.store.Count(),
	})
}

func (h *admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
