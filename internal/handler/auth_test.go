package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mmazune/chefcloud/internal/auth"
	"github.com/mmazune/chefcloud/internal/handler"
	"github.com/mmazune/chefcloud/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// --- Mock store ---

type mockAuthStore struct {
	userByEmail       map[string]store.User
	userByVenuePin    map[string]store.User // key: "venueID:pin"
	managerByVenuePin map[string]store.User
	userByID          map[uuid.UUID]store.User
}

func (m *mockAuthStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	u, ok := m.userByEmail[email]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthStore) GetUserByVenueAndPin(_ context.Context, arg store.GetUserByVenueAndPinParams) (store.User, error) {
	u, ok := m.userByVenuePin[arg.VenueID.String()+":"+arg.Pin.String]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthStore) GetManagerByVenueAndPin(_ context.Context, arg store.GetUserByVenueAndPinParams) (store.User, error) {
	u, ok := m.managerByVenuePin[arg.VenueID.String()+":"+arg.Pin.String]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthStore) GetUserByID(_ context.Context, id uuid.UUID) (store.User, error) {
	u, ok := m.userByID[id]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func newAuthRouter(st *mockAuthStore) chi.Router {
	r := chi.NewRouter()
	handler.NewAuthHandler(st, testSecret).RegisterRoutes(r)
	return r
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hashed)
}

func postJSON(t *testing.T, r chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	venueID := uuid.New()
	user := store.User{
		ID:             uuid.New(),
		VenueID:        venueID,
		FullName:       "Ayu Lestari",
		Email:          "ayu@example.com",
		HashedPassword: hashPassword(t, "secret123"),
		Role:           "MANAGER",
	}
	r := newAuthRouter(&mockAuthStore{userByEmail: map[string]store.User{user.Email: user}})

	rec := postJSON(t, r, "/auth/login", map[string]string{
		"email":    "ayu@example.com",
		"password": "secret123",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		User         struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("expected both tokens to be set")
	}
	if resp.User.Role != "MANAGER" {
		t.Errorf("expected role MANAGER, got %s", resp.User.Role)
	}

	claims, err := auth.ValidateToken(testSecret, resp.AccessToken)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.VenueID != venueID {
		t.Errorf("token venue = %s, want %s", claims.VenueID, venueID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	user := store.User{
		ID:             uuid.New(),
		Email:          "ayu@example.com",
		HashedPassword: hashPassword(t, "secret123"),
		Role:           "MANAGER",
	}
	r := newAuthRouter(&mockAuthStore{userByEmail: map[string]store.User{user.Email: user}})

	rec := postJSON(t, r, "/auth/login", map[string]string{
		"email":    "ayu@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	r := newAuthRouter(&mockAuthStore{userByEmail: map[string]store.User{}})

	rec := postJSON(t, r, "/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "secret123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	r := newAuthRouter(&mockAuthStore{})

	rec := postJSON(t, r, "/auth/login", map[string]string{"email": "ayu@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// --- PIN login ---

func TestPinLogin_Success(t *testing.T) {
	venueID := uuid.New()
	user := store.User{
		ID:      uuid.New(),
		VenueID: venueID,
		Pin:     pgtype.Text{String: "4321", Valid: true},
		Role:    "CASHIER",
	}
	r := newAuthRouter(&mockAuthStore{
		userByVenuePin: map[string]store.User{venueID.String() + ":4321": user},
	})

	rec := postJSON(t, r, "/auth/pin-login", map[string]string{
		"venue_id": venueID.String(),
		"pin":      "4321",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPinLogin_WrongPin(t *testing.T) {
	venueID := uuid.New()
	r := newAuthRouter(&mockAuthStore{userByVenuePin: map[string]store.User{}})

	rec := postJSON(t, r, "/auth/pin-login", map[string]string{
		"venue_id": venueID.String(),
		"pin":      "0000",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestPinLogin_InvalidVenueID(t *testing.T) {
	r := newAuthRouter(&mockAuthStore{})

	rec := postJSON(t, r, "/auth/pin-login", map[string]string{
		"venue_id": "not-a-uuid",
		"pin":      "4321",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// --- Approve ---

func TestApprove_MintsShortLivedToken(t *testing.T) {
	venueID := uuid.New()
	manager := store.User{
		ID:      uuid.New(),
		VenueID: venueID,
		Pin:     pgtype.Text{String: "9876", Valid: true},
		Role:    "MANAGER",
	}
	r := newAuthRouter(&mockAuthStore{
		managerByVenuePin: map[string]store.User{venueID.String() + ":9876": manager},
	})

	rec := postJSON(t, r, "/auth/approve", map[string]string{
		"venue_id": venueID.String(),
		"pin":      "9876",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ApprovalToken string `json:"approval_token"`
		ApproverRole  string `json:"approver_role"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ApproverRole != "MANAGER" {
		t.Errorf("expected approver_role MANAGER, got %s", resp.ApproverRole)
	}

	claims, err := auth.ValidateApprovalToken(testSecret, resp.ApprovalToken)
	if err != nil {
		t.Fatalf("validate approval token: %v", err)
	}
	if claims.ApproverID != manager.ID {
		t.Errorf("approver = %s, want %s", claims.ApproverID, manager.ID)
	}
	if claims.VenueID != venueID {
		t.Errorf("venue = %s, want %s", claims.VenueID, venueID)
	}
}

func TestApprove_CashierPinIsRejected(t *testing.T) {
	// The manager lookup only matches MANAGER/OWNER rows; a cashier's PIN
	// must not mint an approval credential.
	venueID := uuid.New()
	r := newAuthRouter(&mockAuthStore{managerByVenuePin: map[string]store.User{}})

	rec := postJSON(t, r, "/auth/approve", map[string]string{
		"venue_id": venueID.String(),
		"pin":      "4321",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// --- Refresh ---

func TestRefresh_Success(t *testing.T) {
	user := store.User{
		ID:      uuid.New(),
		VenueID: uuid.New(),
		Role:    "CASHIER",
	}
	r := newAuthRouter(&mockAuthStore{userByID: map[uuid.UUID]store.User{user.ID: user}})

	refreshToken, err := auth.GenerateRefreshToken(testSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rec := postJSON(t, r, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := auth.ValidateToken(testSecret, resp.AccessToken)
	if err != nil {
		t.Fatalf("validate new access token: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("token user = %s, want %s", claims.UserID, user.ID)
	}
}

func TestRefresh_GarbageToken(t *testing.T) {
	r := newAuthRouter(&mockAuthStore{})

	rec := postJSON(t, r, "/auth/refresh", map[string]string{"refresh_token": "garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRefresh_DeletedUser(t *testing.T) {
	r := newAuthRouter(&mockAuthStore{userByID: map[uuid.UUID]store.User{}})

	refreshToken, err := auth.GenerateRefreshToken(testSecret, uuid.New())
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rec := postJSON(t, r, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
