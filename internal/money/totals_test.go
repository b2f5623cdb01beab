package money

import (
	"testing"

	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertEq(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

// =====================
// Line tax
// =====================

func TestCalculateLineTax_Inclusive(t *testing.T) {
	// 11,800 quoted with 18% included -> 10,000 net + 1,800 tax.
	lt, err := CalculateLineTax(dec("11800"), TaxRule{Code: "VAT18", Rate: dec("0.18"), Inclusive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEq(t, "net", lt.Net, dec("10000"))
	assertEq(t, "tax", lt.TaxAmount, dec("1800"))
	assertEq(t, "gross", lt.Gross, dec("11800"))
}

func TestCalculateLineTax_Exclusive(t *testing.T) {
	lt, err := CalculateLineTax(dec("10000"), TaxRule{Code: "VAT10", Rate: dec("0.10")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEq(t, "net", lt.Net, dec("10000"))
	assertEq(t, "tax", lt.TaxAmount, dec("1000"))
	assertEq(t, "gross", lt.Gross, dec("11000"))
}

func TestCalculateLineTax_IdentityHoldsOnRoundedFigures(t *testing.T) {
	// An amount that does not divide cleanly: the stored net + tax must still
	// equal the stored gross exactly.
	lt, err := CalculateLineTax(dec("9999"), TaxRule{Rate: dec("0.07"), Inclusive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEq(t, "net+tax", lt.Net.Add(lt.TaxAmount), lt.Gross)
}

func TestCalculateLineTax_InvalidRate(t *testing.T) {
	if _, err := CalculateLineTax(dec("100"), TaxRule{Rate: dec("1.5")}); err != ErrInvalidRate {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
	if _, err := CalculateLineTax(dec("100"), TaxRule{Rate: dec("-0.1")}); err != ErrInvalidRate {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
}

// =====================
// Order totals
// =====================

func TestCalculateOrderTotals_ExclusiveServiceCharge(t *testing.T) {
	// Net subtotal 10,000 + 10% exclusive service charge -> 1,000 charge, 11,000 gross.
	lines := []Line{{Amount: dec("10000"), Rule: TaxRule{}}}
	sc := &TaxRule{Code: "SVC10", Rate: dec("0.10")}

	totals, err := CalculateOrderTotals(lines, nil, sc, Rounding{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEq(t, "subtotal", totals.Subtotal, dec("10000"))
	assertEq(t, "service charge", totals.ServiceCharge, dec("1000"))
	assertEq(t, "gross", totals.GrossTotal, dec("11000"))
	assertEq(t, "rounding delta", totals.RoundingDelta, decimal.Zero)
}

func TestCalculateOrderTotals_CashRounding(t *testing.T) {
	// Computed gross 16,340 with nearest-50 rounding -> 16,350, delta +10.
	lines := []Line{{Amount: dec("16340"), Rule: TaxRule{}}}

	totals, err := CalculateOrderTotals(lines, nil, nil, Rounding{Step: dec("50")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEq(t, "gross", totals.GrossTotal, dec("16350"))
	assertEq(t, "rounding delta", totals.RoundingDelta, dec("10"))
}

func TestCalculateOrderTotals_DiscountBeforeServiceCharge(t *testing.T) {
	// 20% discount on a 10,000 subtotal, then 10% service charge on the
	// discounted base of 8,000.
	lines := []Line{{Amount: dec("10000"), Rule: TaxRule{}}}
	disc := &Discount{Type: enum.DiscountTypePercentage, Value: dec("20")}
	sc := &TaxRule{Rate: dec("0.10")}

	totals, err := CalculateOrderTotals(lines, disc, sc, Rounding{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEq(t, "discount", totals.DiscountTotal, dec("2000"))
	assertEq(t, "service charge", totals.ServiceCharge, dec("800"))
	assertEq(t, "gross", totals.GrossTotal, dec("8800"))
}

func TestCalculateOrderTotals_FixedDiscountClamped(t *testing.T) {
	lines := []Line{{Amount: dec("5000"), Rule: TaxRule{}}}
	disc := &Discount{Type: enum.DiscountTypeFixed, Value: dec("9000")}

	totals, err := CalculateOrderTotals(lines, disc, nil, Rounding{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEq(t, "discount", totals.DiscountTotal, dec("5000"))
	assertEq(t, "gross", totals.GrossTotal, decimal.Zero)
}

func TestCalculateOrderTotals_InvalidDiscountType(t *testing.T) {
	lines := []Line{{Amount: dec("5000"), Rule: TaxRule{}}}
	disc := &Discount{Type: "BOGOF", Value: dec("1")}

	if _, err := CalculateOrderTotals(lines, disc, nil, Rounding{}); err != ErrInvalidDiscountType {
		t.Errorf("expected ErrInvalidDiscountType, got %v", err)
	}
}

func TestCalculateOrderTotals_GrossInvariant(t *testing.T) {
	// For a mixed order the identity
	// gross == round(subtotal - discount + tax + serviceCharge) must hold
	// exactly, with the delta accounting for the difference.
	lines := []Line{
		{Amount: dec("11800"), Rule: TaxRule{Rate: dec("0.18"), Inclusive: true}},
		{Amount: dec("4500"), Rule: TaxRule{Rate: dec("0.10")}},
		{Amount: dec("30"), Rule: TaxRule{}},
	}
	disc := &Discount{Type: enum.DiscountTypePercentage, Value: dec("5")}
	sc := &TaxRule{Rate: dec("0.05")}

	totals, err := CalculateOrderTotals(lines, disc, sc, Rounding{Step: dec("50")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := totals.Subtotal.Sub(totals.DiscountTotal).Add(totals.TaxTotal).Add(totals.ServiceCharge)
	assertEq(t, "gross", totals.GrossTotal, raw.Add(totals.RoundingDelta))
	assertEq(t, "gross", totals.GrossTotal, RoundToStep(raw, dec("50")))
}

func TestCalculateOrderTotals_Deterministic(t *testing.T) {
	lines := []Line{
		{Amount: dec("3333"), Rule: TaxRule{Rate: dec("0.07"), Inclusive: true}},
		{Amount: dec("666"), Rule: TaxRule{Rate: dec("0.18")}},
	}
	disc := &Discount{Type: enum.DiscountTypeFixed, Value: dec("123")}

	first, err := CalculateOrderTotals(lines, disc, nil, Rounding{Step: dec("5")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := CalculateOrderTotals(lines, disc, nil, Rounding{Step: dec("5")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.GrossTotal.Equal(first.GrossTotal) || !again.TaxTotal.Equal(first.TaxTotal) {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		amount, step, want string
	}{
		{"16340", "50", "16350"},
		{"16320", "50", "16300"},
		{"16325", "50", "16350"},
		{"100", "0", "100"},
		{"10.02", "0.05", "10"},
		{"10.03", "0.05", "10.05"},
	}
	for _, tt := range tests {
		got := RoundToStep(dec(tt.amount), dec(tt.step))
		if !got.Equal(dec(tt.want)) {
			t.Errorf("RoundToStep(%s, %s) = %s, want %s", tt.amount, tt.step, got, tt.want)
		}
	}
}
