package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// StaffStore defines the database methods needed by staff handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type StaffStore interface {
	ListUsersByVenue(ctx context.Context, venueID uuid.UUID) ([]store.User, error)
	CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error)
}

// StaffHandler handles staff management endpoints.
type StaffHandler struct {
	store StaffStore
}

// NewStaffHandler creates a new StaffHandler.
func NewStaffHandler(store StaffStore) *StaffHandler {
	return &StaffHandler{store: store}
}

// RegisterRoutes registers staff endpoints on the given Chi router.
// Expected to be mounted inside a venue-scoped subrouter: /venues/{vid}/staff
func (h *StaffHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
}

// --- Request / Response types ---

type createStaffRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Pin      string `json:"pin"`
}

type staffResponse struct {
	ID        uuid.UUID `json:"id"`
	VenueID   uuid.UUID `json:"venue_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	HasPin    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
}

func toStaffResponse(u store.User) staffResponse {
	return staffResponse{
		ID:        u.ID,
		VenueID:   u.VenueID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		HasPin:    u.Pin.Valid,
		CreatedAt: u.CreatedAt,
	}
}

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

func validRole(role string) bool {
	switch role {
	case enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier, enum.UserRoleKitchen:
		return true
	}
	return false
}

// --- Handlers ---

// List returns all staff members of the venue. PINs are never returned.
func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	venueID, err := uuid.Parse(r.PathValue("vid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid venue ID"})
		return
	}

	users, err := h.store.ListUsersByVenue(r.Context(), venueID)
	if err != nil {
		log.Printf("ERROR: list staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]staffResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toStaffResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": out})
}

// Create registers a new staff member at the venue.
func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	venueID, err := uuid.Parse(r.PathValue("vid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid venue ID"})
		return
	}

	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" || req.FullName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email, password and full_name are required"})
		return
	}
	if !validRole(req.Role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}
	if req.Pin != "" && !pinPattern.MatchString(req.Pin) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pin must be 4-6 digits"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("ERROR: hash password: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	pin := pgtype.Text{}
	if req.Pin != "" {
		pin = pgtype.Text{String: req.Pin, Valid: true}
	}

	user, err := h.store.CreateUser(r.Context(), store.CreateUserParams{
		VenueID:        venueID,
		FullName:       req.FullName,
		Email:          req.Email,
		HashedPassword: string(hashed),
		Pin:            pin,
		Role:           req.Role,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email already in use"})
			return
		}
		log.Printf("ERROR: create staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toStaffResponse(user))
}
