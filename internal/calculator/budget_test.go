package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEvaluateBudget(t *testing.T) {
	tests := []struct {
		name      string
		budget    string
		total     string
		threshold float64
		want      *BudgetStatus
	}{
		{
			name:   "warning at default threshold",
			budget: "1000",
			total:  "850.00",
			want:   &BudgetStatus{Ratio: 0.85, State: BudgetWarning},
		},
		{
			name:   "ok below threshold",
			budget: "1000",
			total:  "500.00",
			want:   &BudgetStatus{Ratio: 0.5, State: BudgetOK},
		},
		{
			name:   "exceeded at exactly the budget",
			budget: "1000",
			total:  "1000.00",
			want:   &BudgetStatus{Ratio: 1.0, State: BudgetExceeded},
		},
		{
			name:   "exceeded above the budget",
			budget: "200",
			total:  "350.00",
			want:   &BudgetStatus{Ratio: 1.75, State: BudgetExceeded},
		},
		{
			name:      "custom threshold",
			budget:    "1000",
			total:     "550.00",
			threshold: 0.5,
			want:      &BudgetStatus{Ratio: 0.55, State: BudgetWarning},
		},
		{
			name:   "zero budget yields no status",
			budget: "0",
			total:  "100.00",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := Stats{TotalExpenses: dec(tt.total)}
			got := EvaluateBudget(dec(tt.budget), stats, tt.threshold)

			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil status, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a status, got nil")
			}
			if got.State != tt.want.State {
				t.Errorf("state = %q, want %q", got.State, tt.want.State)
			}
			if diff := got.Ratio - tt.want.Ratio; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ratio = %v, want %v", got.Ratio, tt.want.Ratio)
			}
		})
	}
}

func TestEvaluateBudget_NegativeBudget(t *testing.T) {
	if got := EvaluateBudget(decimal.NewFromInt(-5), Stats{TotalExpenses: dec("10.00")}, 0); got != nil {
		t.Fatalf("expected nil status for negative budget, got %+v", got)
	}
}
