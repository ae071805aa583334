// Package formula provides deterministic evaluation of the financial
// formulas referenced by research artifacts. Every formula is pure: the
// same inputs always produce the same result and breakdown, which is
// what makes validator arithmetic checks reproducible.
package formula

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Result is the output of a formula evaluation. Breakdown carries the
// intermediate values so a reviewer can audit the arithmetic.
type Result struct {
	Value     float64            `json:"value"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// Func evaluates a formula from named numeric inputs.
type Func func(inputs map[string]float64) (*Result, error)

var registry = map[string]Func{
	"owner_earnings":      OwnerEarnings,
	"dcf_intrinsic_value": DCFIntrinsicValue,
	"margin_of_safety":    MarginOfSafety,
	"roic":                ROIC,
	"cagr":                CAGR,
}

// IDs returns the registered formula identifiers, sorted.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Evaluate runs the formula with the given ID.
func Evaluate(formulaID string, inputs map[string]float64) (*Result, error) {
	fn, ok := registry[formulaID]
	if !ok {
		return nil, eris.Errorf("formula: unknown formula %q", formulaID)
	}
	return fn(inputs)
}

func require(inputs map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := inputs[k]; !ok {
			return eris.Errorf("formula: missing required input %q", k)
		}
	}
	return nil
}

// OwnerEarnings computes Buffett-style owner earnings: net income plus
// depreciation and amortization, minus maintenance capex. When
// maintenance_capex is not supplied, total capex is used as a
// conservative stand-in.
func OwnerEarnings(inputs map[string]float64) (*Result, error) {
	if err := require(inputs, "net_income", "depreciation_amortization"); err != nil {
		return nil, err
	}

	maintCapex, ok := inputs["maintenance_capex"]
	if !ok {
		maintCapex = inputs["capex"]
	}

	value := inputs["net_income"] + inputs["depreciation_amortization"] - maintCapex

	return &Result{
		Value: value,
		Breakdown: map[string]float64{
			"net_income":                inputs["net_income"],
			"depreciation_amortization": inputs["depreciation_amortization"],
			"maintenance_capex":         maintCapex,
		},
	}, nil
}

// DCFIntrinsicValue computes a two-stage discounted cash flow value.
// Stage one grows free cash flow at growth_rate for years (default 10),
// stage two is a Gordon terminal value at terminal_growth. If
// shares_outstanding is supplied the result is per share, otherwise it
// is the total equity value.
func DCFIntrinsicValue(inputs map[string]float64) (*Result, error) {
	if err := require(inputs, "fcf", "growth_rate", "terminal_growth", "discount_rate"); err != nil {
		return nil, err
	}

	r := inputs["discount_rate"]
	g := inputs["growth_rate"]
	gt := inputs["terminal_growth"]
	if r <= gt {
		return nil, eris.Errorf("formula: discount_rate %.4f must exceed terminal_growth %.4f", r, gt)
	}

	years := 10.0
	if y, ok := inputs["years"]; ok && y > 0 {
		years = math.Floor(y)
	}

	fcf := inputs["fcf"]
	var stagePV float64
	for t := 1.0; t <= years; t++ {
		fcf *= 1 + g
		stagePV += fcf / math.Pow(1+r, t)
	}

	terminalValue := fcf * (1 + gt) / (r - gt)
	terminalPV := terminalValue / math.Pow(1+r, years)
	total := stagePV + terminalPV

	breakdown := map[string]float64{
		"stage_one_pv":   stagePV,
		"terminal_value": terminalValue,
		"terminal_pv":    terminalPV,
		"equity_value":   total,
		"years":          years,
	}

	value := total
	if shares, ok := inputs["shares_outstanding"]; ok {
		if shares <= 0 {
			return nil, eris.New("formula: shares_outstanding must be positive")
		}
		value = total / shares
		breakdown["per_share"] = value
	}

	return &Result{Value: value, Breakdown: breakdown}, nil
}

// MarginOfSafety computes the discount of price to intrinsic value as a
// fraction of intrinsic value. Positive means the price is below value.
func MarginOfSafety(inputs map[string]float64) (*Result, error) {
	if err := require(inputs, "intrinsic_value", "price"); err != nil {
		return nil, err
	}
	iv := inputs["intrinsic_value"]
	if iv == 0 {
		return nil, eris.New("formula: intrinsic_value must be nonzero")
	}

	value := (iv - inputs["price"]) / iv

	return &Result{
		Value: value,
		Breakdown: map[string]float64{
			"intrinsic_value": iv,
			"price":           inputs["price"],
		},
	}, nil
}

// ROIC computes return on invested capital as NOPAT over invested
// capital. NOPAT is derived from EBIT and the tax rate.
func ROIC(inputs map[string]float64) (*Result, error) {
	if err := require(inputs, "ebit", "tax_rate", "invested_capital"); err != nil {
		return nil, err
	}
	if inputs["invested_capital"] == 0 {
		return nil, eris.New("formula: invested_capital must be nonzero")
	}
	if inputs["tax_rate"] < 0 || inputs["tax_rate"] >= 1 {
		return nil, eris.Errorf("formula: tax_rate %.4f out of range [0, 1)", inputs["tax_rate"])
	}

	nopat := inputs["ebit"] * (1 - inputs["tax_rate"])
	value := nopat / inputs["invested_capital"]

	return &Result{
		Value: value,
		Breakdown: map[string]float64{
			"nopat":            nopat,
			"invested_capital": inputs["invested_capital"],
		},
	}, nil
}

// CAGR computes the compound annual growth rate from a beginning value,
// an ending value and a year span.
func CAGR(inputs map[string]float64) (*Result, error) {
	if err := require(inputs, "begin_value", "end_value", "years"); err != nil {
		return nil, err
	}
	if inputs["begin_value"] <= 0 {
		return nil, eris.New("formula: begin_value must be positive")
	}
	if inputs["end_value"] <= 0 {
		return nil, eris.New("formula: end_value must be positive")
	}
	if inputs["years"] <= 0 {
		return nil, eris.New("formula: years must be positive")
	}

	value := math.Pow(inputs["end_value"]/inputs["begin_value"], 1/inputs["years"]) - 1

	return &Result{
		Value: value,
		Breakdown: map[string]float64{
			"begin_value":  inputs["begin_value"],
			"end_value":    inputs["end_value"],
			"years":        inputs["years"],
			"total_growth": inputs["end_value"]/inputs["begin_value"] - 1,
		},
	}, nil
}
