package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/haulite/internal/dispatch/broadcast"
	"github.com/example/haulite/internal/dispatch/domain"
	"github.com/example/haulite/internal/dispatch/service"
)

// HTTP exposes the dispatch endpoints.
type HTTP struct {
	svc   *service.Dispatcher
	hub   *broadcast.Hub
	guard func(http.Handler) http.Handler
}

// NewHTTP constructs a handler. guard, when non-nil, wraps the operator
// endpoints (dumpsite, route computation, resolution).
func NewHTTP(svc *service.Dispatcher, hub *broadcast.Hub, guard func(http.Handler) http.Handler) *HTTP {
	return &HTTP{svc: svc, hub: hub, guard: guard}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Post("/v1/pickups", h.upsertPickup)
	r.Get("/v1/pickups", h.listPickups)
	r.Delete("/v1/pickups/{id}", h.removePickup)
	r.Post("/v1/truck/position", h.reportPosition)
	r.Get("/v1/eta", h.estimate)
	r.Get("/v1/snapshot", h.snapshot)
	if h.hub != nil {
		r.Get("/ws", h.hub.Handler)
	}

	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Put("/v1/dumpsite", h.setDumpsite)
		r.Post("/v1/route/compute", h.computeRoute)
		r.Post("/v1/pickups/{id}/resolve", h.resolvePickup)
	})
	return r
}

type pickupPayload struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"owner_id,omitempty"`
	Location      domain.GeoPoint   `json:"location"`
	Kind          domain.PickupKind `json:"kind,omitempty"`
	DeclaredPrice int64             `json:"declared_price,omitempty"`
}

func (h *HTTP) upsertPickup(w http.ResponseWriter, r *http.Request) {
	var payload pickupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var owner *uuid.UUID
	if payload.OwnerID != "" {
		id, err := uuid.Parse(payload.OwnerID)
		if err != nil {
			http.Error(w, "invalid owner_id", http.StatusBadRequest)
			return
		}
		owner = &id
	}

	req, err := h.svc.UpsertPickup(r.Context(), payload.ID, owner, payload.Location, payload.Kind, payload.DeclaredPrice)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *HTTP) listPickups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State().Requests)
}

func (h *HTTP) removePickup(w http.ResponseWriter, r *http.Request) {
	removed := h.svc.RemovePickup(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *HTTP) setDumpsite(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Label    string          `json:"label,omitempty"`
		Location domain.GeoPoint `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	site := h.svc.SetDumpsite(r.Context(), payload.Label, payload.Location)
	writeJSON(w, http.StatusOK, site)
}

func (h *HTTP) computeRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := h.svc.ComputeRoute(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *HTTP) reportPosition(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Location domain.GeoPoint `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	arrivals := h.svc.ReportPosition(r.Context(), r.Header.Get("X-Client-ID"), payload.Location)
	writeJSON(w, http.StatusOK, map[string]any{"arrivals": arrivals})
}

func (h *HTTP) resolvePickup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Outcome       domain.RequestStatus `json:"outcome"`
		DeclaredPrice int64                `json:"declared_price,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "id"), payload.Outcome, payload.DeclaredPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *HTTP) estimate(w http.ResponseWriter, r *http.Request) {
	target := domain.GeoPoint{Lat: parseQueryFloat(r, "lat"), Lng: parseQueryFloat(r, "lng")}
	eta, ok := h.svc.EstimateArrival(target)
	if !ok {
		http.Error(w, "no truck position reported yet", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eta_sec": eta.Seconds()})
}

func (h *HTTP) snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State())
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyResolved):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNoDumpsite), errors.Is(err, domain.ErrNoPendingStops):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func parseQueryFloat(r *http.Request, key string) float64 {
	v, _ := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
