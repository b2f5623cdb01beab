package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mmazune/chefcloud/internal/store"
)

// AuditStore defines the database methods needed by the audit handler.
// Satisfied by *store.Queries; narrow interface for testability.
type AuditStore interface {
	ListAuditEvents(ctx context.Context, arg store.ListAuditEventsParams) ([]store.AuditEvent, error)
}

// AuditHandler serves the append-only transition record for shift review and
// dispute resolution.
type AuditHandler struct {
	store AuditStore
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(store AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

// RegisterRoutes registers audit endpoints on the given Chi router.
// Expected to be mounted inside a venue-scoped subrouter: /venues/{vid}/audit
func (h *AuditHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

type auditEventResponse struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    uuid.UUID       `json:"order_id"`
	FromStatus string          `json:"from_status"`
	ToStatus   string          `json:"to_status"`
	ActorID    uuid.UUID       `json:"actor_id"`
	ActorRole  string          `json:"actor_role"`
	Kind       string          `json:"kind"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// List returns the venue's audit events, newest first. Filterable by actor,
// order, kind, and date range.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	venueID, err := uuid.Parse(r.PathValue("vid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid venue ID"})
		return
	}

	params := store.ListAuditEventsParams{
		VenueID: venueID,
		Limit:   100,
		Offset:  0,
	}
	if s := r.URL.Query().Get("actor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid actor_id"})
			return
		}
		params.ActorID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("order_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
			return
		}
		params.OrderID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("kind"); s != "" {
		params.Kind = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date, expected YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date, expected YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t.AddDate(0, 0, 1), Valid: true}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		params.Limit = int32(n)
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		params.Offset = int32(n)
	}

	events, err := h.store.ListAuditEvents(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list audit events: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			ID:         e.ID,
			OrderID:    e.OrderID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			ActorID:    e.ActorID,
			ActorRole:  e.ActorRole,
			Kind:       e.Kind,
			Reason:     e.Reason.String,
			Metadata:   json.RawMessage(e.Metadata),
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
