/*
Package factory provides JSON to Go lending policy conversion.

PURPOSE:
  Converts a JSON lending policy document into library.Policy so that the
  loan period and the fine rules can change without a rebuild. cmd/server
  loads one with -policy at startup.

JSON SCHEMA:
  {
    "name": "standard",
    "loan_period_days": 14,
    "daily_fine": "0.50",
    "fine_threshold": "50.00"
  }

  Amounts accept either JSON strings or numbers. Missing fields keep the
  value from library.DefaultPolicy().

USAGE:
  factory := NewPolicyFactory()
  policy, err := factory.ParsePolicy(jsonString)

  lib, err := library.New(store, library.WithPolicy(policy))

SEE ALSO:
  - library/policy.go: Policy type and validation
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/library"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a lending policy.
type PolicyJSON struct {
	Name           string           `json:"name,omitempty"`
	LoanPeriodDays *int             `json:"loan_period_days,omitempty"`
	DailyFine      *decimal.Decimal `json:"daily_fine,omitempty"`
	FineThreshold  *decimal.Decimal `json:"fine_threshold,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to library.Policy.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a validated Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (library.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return library.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// LoadFile reads and parses the policy document at path.
func (f *PolicyFactory) LoadFile(path string) (library.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return library.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return f.ParsePolicy(string(data))
}

// FromJSON overlays pj on the default policy and validates the result.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (library.Policy, error) {
	policy := library.DefaultPolicy()
	if pj.LoanPeriodDays != nil {
		policy.LoanPeriodDays = *pj.LoanPeriodDays
	}
	if pj.DailyFine != nil {
		policy.DailyFine = *pj.DailyFine
	}
	if pj.FineThreshold != nil {
		policy.FineThreshold = *pj.FineThreshold
	}

	if err := policy.Validate(); err != nil {
		return library.Policy{}, fmt.Errorf("invalid policy %q: %w", pj.Name, err)
	}
	return policy, nil
}

// ToJSON converts a Policy to PolicyJSON.
func (f *PolicyFactory) ToJSON(name string, policy library.Policy) PolicyJSON {
	return PolicyJSON{
		Name:           name,
		LoanPeriodDays: &policy.LoanPeriodDays,
		DailyFine:      &policy.DailyFine,
		FineThreshold:  &policy.FineThreshold,
	}
}
