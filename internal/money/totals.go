package money

import (
	"errors"

	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by the totals calculator.
var (
	ErrInvalidRate         = errors.New("tax rate must be between 0 and 1")
	ErrInvalidDiscountType = errors.New("invalid discount type")
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// TaxRule is a snapshot of a tax (or service charge) rule at calculation time.
// Rules are copied, never referenced live, so a stored total stays reproducible.
type TaxRule struct {
	Code      string
	Rate      decimal.Decimal // 0..1
	Inclusive bool
}

// LineTax is the net/tax/gross split of a single amount under one rule.
type LineTax struct {
	Net       decimal.Decimal
	TaxAmount decimal.Decimal
	Gross     decimal.Decimal
}

// Line is one order line as the calculator sees it: the extended amount
// (unit price * quantity, minus any line discount) and its resolved tax rule.
type Line struct {
	Amount decimal.Decimal
	Rule   TaxRule
}

// Discount is an order-level discount applied to the net subtotal.
type Discount struct {
	Type  string // enum.DiscountTypePercentage or enum.DiscountTypeFixed
	Value decimal.Decimal
}

// Rounding describes the currency's cash rounding. Step is the smallest cash
// step in the currency's units, e.g. 50 for IDR. A zero step disables rounding.
type Rounding struct {
	Step decimal.Decimal
}

// Totals is the full monetary breakdown of an order. RoundingDelta is the
// amount added (or removed, negative) by the final cash rounding, so
// GrossTotal - (Subtotal - DiscountTotal + TaxTotal + ServiceCharge) is
// always explainable.
type Totals struct {
	Subtotal      decimal.Decimal
	TaxTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ServiceCharge decimal.Decimal
	GrossTotal    decimal.Decimal
	RoundingDelta decimal.Decimal
}

// CalculateLineTax splits amount into net/tax/gross under rule.
//
// Inclusive: the quoted amount already contains tax, so net = amount/(1+rate)
// and gross stays amount. Exclusive: tax is added on top. Net and tax are
// rounded to 2 decimal places so the identity net + tax == gross holds on the
// stored figures, not just in full precision.
func CalculateLineTax(amount decimal.Decimal, rule TaxRule) (LineTax, error) {
	if rule.Rate.IsNegative() || rule.Rate.GreaterThan(one) {
		return LineTax{}, ErrInvalidRate
	}

	if rule.Inclusive {
		net := amount.Div(one.Add(rule.Rate)).Round(2)
		return LineTax{
			Net:       net,
			TaxAmount: amount.Sub(net),
			Gross:     amount,
		}, nil
	}

	tax := amount.Mul(rule.Rate).Round(2)
	return LineTax{
		Net:       amount,
		TaxAmount: tax,
		Gross:     amount.Add(tax),
	}, nil
}

// CalculateOrderTotals computes the order breakdown:
//
//  1. per-line net and tax are summed,
//  2. the order discount is applied to the net subtotal,
//  3. an optional service charge (itself an inclusive/exclusive rule) is
//     applied to the discounted base,
//  4. cash rounding is applied exactly once, on the final gross figure.
//
// The discount never drives the base negative; it is clamped to the subtotal.
func CalculateOrderTotals(lines []Line, discount *Discount, serviceCharge *TaxRule, rounding Rounding) (Totals, error) {
	subtotal := decimal.Zero
	taxTotal := decimal.Zero

	for _, line := range lines {
		lt, err := CalculateLineTax(line.Amount, line.Rule)
		if err != nil {
			return Totals{}, err
		}
		subtotal = subtotal.Add(lt.Net)
		taxTotal = taxTotal.Add(lt.TaxAmount)
	}

	discountTotal := decimal.Zero
	if discount != nil {
		switch discount.Type {
		case enum.DiscountTypePercentage:
			discountTotal = subtotal.Mul(discount.Value).Div(hundred).Round(2)
		case enum.DiscountTypeFixed:
			discountTotal = discount.Value
		default:
			return Totals{}, ErrInvalidDiscountType
		}
		if discountTotal.GreaterThan(subtotal) {
			discountTotal = subtotal
		}
	}

	base := subtotal.Sub(discountTotal)

	// The service charge is tax-like: exclusive adds on top of the discounted
	// base, inclusive is carved out of it.
	serviceChargeAmt := decimal.Zero
	grossBeforeRounding := base.Add(taxTotal)
	if serviceCharge != nil {
		sc, err := CalculateLineTax(base, *serviceCharge)
		if err != nil {
			return Totals{}, err
		}
		serviceChargeAmt = sc.TaxAmount
		grossBeforeRounding = sc.Gross.Add(taxTotal)
	}

	gross := RoundToStep(grossBeforeRounding, rounding.Step)

	return Totals{
		Subtotal:      subtotal,
		TaxTotal:      taxTotal,
		DiscountTotal: discountTotal,
		ServiceCharge: serviceChargeAmt,
		GrossTotal:    gross,
		RoundingDelta: gross.Sub(grossBeforeRounding),
	}, nil
}

// RoundToStep rounds amount to the nearest multiple of step (half away from
// zero). A non-positive step returns the amount unchanged.
func RoundToStep(amount, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return amount
	}
	return amount.Div(step).Round(0).Mul(step)
}
