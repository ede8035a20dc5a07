package library

import "github.com/shopspring/decimal"

// =============================================================================
// POLICY - Lending parameters
// =============================================================================

// Policy holds the numbers the lending rules depend on.
type Policy struct {
	// LoanPeriodDays is added to the borrow date to get the due date.
	LoanPeriodDays int
	// DailyFine accrues for each whole day a loan is returned late.
	DailyFine decimal.Decimal
	// FineThreshold blocks borrowing once FinesOwed reaches it.
	FineThreshold decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		LoanPeriodDays: 14,
		DailyFine:      decimal.RequireFromString("0.50"),
		FineThreshold:  decimal.RequireFromString("50.00"),
	}
}

func (p Policy) Validate() error {
	if p.LoanPeriodDays < 1 {
		return &FieldError{Field: "loan_period_days", Message: "must be at least 1"}
	}
	if p.DailyFine.IsNegative() {
		return invalidAmount("daily_fine", p.DailyFine)
	}
	if !p.FineThreshold.IsPositive() {
		return &FieldError{Field: "fine_threshold", Message: "must be positive"}
	}
	return nil
}

// OverdueFine computes days overdue and the fine for a loan due on due and
// returned on returned. Both are zero when returned <= due.
func (p Policy) OverdueFine(due, returned Date) (decimal.Decimal, int) {
	days := DaysBetween(due, returned)
	if days <= 0 {
		return decimal.Zero, 0
	}
	return p.DailyFine.Mul(decimal.NewFromInt(int64(days))), days
}
