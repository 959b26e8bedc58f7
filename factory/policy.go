/*
Package factory provides JSON to Go payment policy conversion.

PURPOSE:
  Converts JSON payment policy definitions into booking.PaymentRules. Front
  office managers can tune amount limits, method ceilings and the refund cap
  without a code change; the server loads the file named by
  PAYMENT_POLICY_FILE at startup.

JSON SCHEMA:
  {
    "min_amount": "1",
    "max_amount": "1000000",
    "method_ceilings": {"cash": "200000", "upi": "100000"},
    "allowed_methods": {"refund": ["cash", "bank_transfer", "other"]},
    "disallowed_methods": {"cancellation_fee": ["cheque"]},
    "max_refund_percentage": "100",
    "future_tolerance": "24h",
    "max_backdate": "8760h"
  }

  Every field is optional. Missing fields keep booking.DefaultPaymentRules().
  A map that is present replaces the default map wholesale.

KEY FEATURES:
  - Validates JSON structure and enum names
  - Rejects inconsistent limits (min > max, percentage outside 0-100)
  - Round-trips through ToJSON

USAGE:
  factory := NewPolicyFactory()
  rules, err := factory.LoadFile(cfg.PaymentPolicyFile)
  ledger := booking.NewPaymentLedger(store, numbers, audit, clock, log, rules)

SEE ALSO:
  - booking/payments.go: PaymentRules and their enforcement
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lodge-engine/booking"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of payment rules.
type PolicyJSON struct {
	MinAmount           *decimal.Decimal           `json:"min_amount,omitempty"`
	MaxAmount           *decimal.Decimal           `json:"max_amount,omitempty"`
	MethodCeilings      map[string]decimal.Decimal `json:"method_ceilings,omitempty"`
	AllowedMethods      map[string][]string        `json:"allowed_methods,omitempty"`
	DisallowedMethods   map[string][]string        `json:"disallowed_methods,omitempty"`
	MaxRefundPercentage *decimal.Decimal           `json:"max_refund_percentage,omitempty"`
	FutureTolerance     string                     `json:"future_tolerance,omitempty"` // Go duration, e.g. "24h"
	MaxBackdate         string                     `json:"max_backdate,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to booking.PaymentRules.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// LoadFile reads and parses a policy file. An empty path returns the defaults.
func (f *PolicyFactory) LoadFile(path string) (booking.PaymentRules, error) {
	if path == "" {
		return booking.DefaultPaymentRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return booking.PaymentRules{}, fmt.Errorf("failed to read payment policy %s: %w", path, err)
	}
	return f.ParsePolicy(string(data))
}

// ParsePolicy parses a JSON string into PaymentRules.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (booking.PaymentRules, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return booking.PaymentRules{}, fmt.Errorf("failed to parse payment policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON overlays pj onto the default rules and validates the result.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (booking.PaymentRules, error) {
	rules := booking.DefaultPaymentRules()

	if pj.MinAmount != nil {
		rules.MinAmount = *pj.MinAmount
	}
	if pj.MaxAmount != nil {
		rules.MaxAmount = *pj.MaxAmount
	}
	if pj.MaxRefundPercentage != nil {
		rules.MaxRefundPercentage = *pj.MaxRefundPercentage
	}

	if pj.MethodCeilings != nil {
		rules.MethodCeilings = make(map[booking.PaymentMethod]decimal.Decimal, len(pj.MethodCeilings))
		for name, ceiling := range pj.MethodCeilings {
			m, err := parseMethod(name)
			if err != nil {
				return booking.PaymentRules{}, fmt.Errorf("method_ceilings: %w", err)
			}
			if !ceiling.IsPositive() {
				return booking.PaymentRules{}, fmt.Errorf("method_ceilings: %s ceiling must be positive", name)
			}
			rules.MethodCeilings[m] = ceiling
		}
	}

	var err error
	if pj.AllowedMethods != nil {
		if rules.AllowedMethods, err = parseMethodMap(pj.AllowedMethods); err != nil {
			return booking.PaymentRules{}, fmt.Errorf("allowed_methods: %w", err)
		}
	}
	if pj.DisallowedMethods != nil {
		if rules.DisallowedMethods, err = parseMethodMap(pj.DisallowedMethods); err != nil {
			return booking.PaymentRules{}, fmt.Errorf("disallowed_methods: %w", err)
		}
	}

	if pj.FutureTolerance != "" {
		if rules.FutureTolerance, err = parseDuration("future_tolerance", pj.FutureTolerance); err != nil {
			return booking.PaymentRules{}, err
		}
	}
	if pj.MaxBackdate != "" {
		if rules.MaxBackdate, err = parseDuration("max_backdate", pj.MaxBackdate); err != nil {
			return booking.PaymentRules{}, err
		}
	}

	if err := validateRules(rules); err != nil {
		return booking.PaymentRules{}, err
	}
	return rules, nil
}

// ToJSON converts PaymentRules to PolicyJSON. Slices are sorted for stable output.
func (f *PolicyFactory) ToJSON(rules booking.PaymentRules) PolicyJSON {
	minAmount, maxAmount, pct := rules.MinAmount, rules.MaxAmount, rules.MaxRefundPercentage
	pj := PolicyJSON{
		MinAmount:           &minAmount,
		MaxAmount:           &maxAmount,
		MaxRefundPercentage: &pct,
		MethodCeilings:      make(map[string]decimal.Decimal, len(rules.MethodCeilings)),
		AllowedMethods:      methodMapJSON(rules.AllowedMethods),
		DisallowedMethods:   methodMapJSON(rules.DisallowedMethods),
		FutureTolerance:     rules.FutureTolerance.String(),
		MaxBackdate:         rules.MaxBackdate.String(),
	}
	for m, c := range rules.MethodCeilings {
		pj.MethodCeilings[string(m)] = c
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func validateRules(r booking.PaymentRules) error {
	if !r.MinAmount.IsPositive() {
		return fmt.Errorf("min_amount must be positive, got %s", r.MinAmount)
	}
	if r.MaxAmount.LessThan(r.MinAmount) {
		return fmt.Errorf("max_amount %s is below min_amount %s", r.MaxAmount, r.MinAmount)
	}
	if r.MaxRefundPercentage.IsNegative() || r.MaxRefundPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("max_refund_percentage must be between 0 and 100, got %s", r.MaxRefundPercentage)
	}
	if r.FutureTolerance < 0 || r.MaxBackdate < 0 {
		return fmt.Errorf("payment date window cannot be negative")
	}
	return nil
}

func parseMethod(s string) (booking.PaymentMethod, error) {
	m := booking.PaymentMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return m, nil
}

func parseMethodMap(in map[string][]string) (map[booking.PaymentType][]booking.PaymentMethod, error) {
	out := make(map[booking.PaymentType][]booking.PaymentMethod, len(in))
	for typeName, methods := range in {
		t := booking.PaymentType(typeName)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown payment type %q", typeName)
		}
		list := make([]booking.PaymentMethod, 0, len(methods))
		for _, name := range methods {
			m, err := parseMethod(name)
			if err != nil {
				return nil, err
			}
			list = append(list, m)
		}
		out[t] = list
	}
	return out, nil
}

func methodMapJSON(in map[booking.PaymentType][]booking.PaymentMethod) map[string][]string {
	out := make(map[string][]string, len(in))
	for t, methods := range in {
		names := make([]string, len(methods))
		for i, m := range methods {
			names[i] = string(m)
		}
		sort.Strings(names)
		out[string(t)] = names
	}
	return out
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
