package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mmazune/chefcloud/internal/store"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type ReportsStore interface {
	GetSalesSummary(ctx context.Context, arg store.SalesSummaryParams) (store.SalesSummaryRow, error)
	ListPaymentTotalsByMethod(ctx context.Context, arg store.SalesSummaryParams) ([]store.PaymentMethodTotal, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	store ReportsStore
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store}
}

// RegisterRoutes registers venue-scoped report endpoints.
// Expected to be mounted inside a venue-scoped subrouter: /venues/{vid}/reports
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily", h.Daily)
}

// --- Response types ---

type tenderTotalResponse struct {
	Method string `json:"method"`
	Count  int64  `json:"count"`
	Amount string `json:"amount"`
}

type dailyReportResponse struct {
	Date          string                `json:"date"`
	ClosedOrders  int64                 `json:"closed_orders"`
	VoidedOrders  int64                 `json:"voided_orders"`
	Subtotal      string                `json:"subtotal"`
	TaxTotal      string                `json:"tax_total"`
	DiscountTotal string                `json:"discount_total"`
	ServiceCharge string                `json:"service_charge"`
	GrossTotal    string                `json:"gross_total"`
	RoundingDelta string                `json:"rounding_delta"`
	Tenders       []tenderTotalResponse `json:"tenders"`
}

// --- Handlers ---

// Daily returns the end-of-day figures for one date (default today): closed
// and voided order counts, the monetary breakdown, and totals per tender.
func (h *ReportsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	venueID, err := uuid.Parse(r.PathValue("vid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid venue ID"})
		return
	}

	day := time.Now().Truncate(24 * time.Hour)
	if s := r.URL.Query().Get("date"); s != "" {
		day, err = time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
	}

	params := store.SalesSummaryParams{
		VenueID:   venueID,
		StartDate: pgtype.Timestamptz{Time: day, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: day.AddDate(0, 0, 1), Valid: true},
	}

	summary, err := h.store.GetSalesSummary(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: sales summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	tenders, err := h.store.ListPaymentTotalsByMethod(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: payment totals: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dailyReportResponse{
		Date:          day.Format("2006-01-02"),
		ClosedOrders:  summary.ClosedOrders,
		VoidedOrders:  summary.VoidedOrders,
		Subtotal:      store.NumericToDecimal(summary.Subtotal).StringFixed(2),
		TaxTotal:      store.NumericToDecimal(summary.TaxTotal).StringFixed(2),
		DiscountTotal: store.NumericToDecimal(summary.DiscountTotal).StringFixed(2),
		ServiceCharge: store.NumericToDecimal(summary.ServiceCharge).StringFixed(2),
		GrossTotal:    store.NumericToDecimal(summary.GrossTotal).StringFixed(2),
		RoundingDelta: store.NumericToDecimal(summary.RoundingDelta).StringFixed(2),
		Tenders:       make([]tenderTotalResponse, 0, len(tenders)),
	}
	for _, t := range tenders {
		resp.Tenders = append(resp.Tenders, tenderTotalResponse{
			Method: t.Method,
			Count:  t.Count,
			Amount: store.NumericToDecimal(t.Amount).StringFixed(2),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
