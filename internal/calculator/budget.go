package calculator

import "github.com/shopspring/decimal"

// DefaultWarningThreshold is the spend ratio at which a budget starts
// warning, unless the caller configures another one.
const DefaultWarningThreshold = 0.80

// BudgetState classifies spend against a budget.
type BudgetState string

const (
	BudgetOK       BudgetState = "ok"
	BudgetWarning  BudgetState = "warning"
	BudgetExceeded BudgetState = "exceeded"
)

// BudgetStatus reports how far through its budget a group is.
type BudgetStatus struct {
	// Ratio is total spend divided by the budget.
	Ratio float64 `json:"ratio"`

	// State is ok below the warning threshold, warning from the threshold
	// up to (but excluding) the budget, exceeded at or above it.
	State BudgetState `json:"state"`
}

// EvaluateBudget compares aggregated spend against a group's budget.
//
// Returns nil when no budget is set (absent or zero): the monitor never
// divides by zero and never fabricates a budget. warningThreshold outside
// (0, 1) falls back to DefaultWarningThreshold.
func EvaluateBudget(budget decimal.Decimal, stats Stats, warningThreshold float64) *BudgetStatus {
	if !budget.IsPositive() {
		return nil
	}
	if warningThreshold <= 0 || warningThreshold >= 1 {
		warningThreshold = DefaultWarningThreshold
	}

	ratio := stats.TotalExpenses.Div(budget).InexactFloat64()
	state := BudgetOK
	switch {
	case ratio >= 1.0:
		state = BudgetExceeded
	case ratio >= warningThreshold:
		state = BudgetWarning
	}
	return &BudgetStatus{Ratio: ratio, State: state}
}
