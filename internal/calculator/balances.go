package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/divvyup/ledger/internal/models"
)

// Trend indicates how a category's spend moved relative to a baseline period.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// Stats is the read-only aggregate derived from a group's expenses.
// It is a pure function of (group, expenses): identical inputs always
// produce identical outputs, independent of expense ordering.
type Stats struct {
	// TotalExpenses is the sum of all expense amounts.
	TotalExpenses decimal.Decimal `json:"total_expenses"`

	// ExpensesByCategory sums amounts per category. Every known category
	// is present, zero-spend categories included.
	ExpensesByCategory map[models.Category]decimal.Decimal `json:"expenses_by_category"`

	// AveragePerMember is TotalExpenses divided by the member count,
	// rounded to the cent. Zero when the group has no members.
	AveragePerMember decimal.Decimal `json:"average_per_member"`

	// MemberCount and ExpenseCount describe the inputs.
	MemberCount  int `json:"member_count"`
	ExpenseCount int `json:"expense_count"`

	// Trends compares per-category spend against a baseline period.
	// Nil when no baseline was supplied; a trend is never guessed.
	// Categories whose spend is unchanged are omitted.
	Trends map[models.Category]Trend `json:"trends,omitempty"`
}

// Aggregate derives statistics for a group from its expense collection.
//
// Sums are accumulated in integer cents so the result cannot depend on
// iteration order or accumulate floating-point drift.
func Aggregate(group *models.Group, expenses []models.Expense) Stats {
	byCategory := make(map[models.Category]int64, len(models.Categories()))
	for _, c := range models.Categories() {
		byCategory[c] = 0
	}

	totalCents := int64(0)
	for i := range expenses {
		cents := expenses[i].Amount.Shift(2).IntPart()
		totalCents += cents
		byCategory[expenses[i].Category] += cents
	}

	stats := Stats{
		TotalExpenses:      decimal.New(totalCents, -2),
		ExpensesByCategory: make(map[models.Category]decimal.Decimal, len(byCategory)),
		MemberCount:        len(group.Members),
		ExpenseCount:       len(expenses),
	}
	for c, cents := range byCategory {
		stats.ExpensesByCategory[c] = decimal.New(cents, -2)
	}

	if stats.MemberCount > 0 {
		stats.AveragePerMember = stats.TotalExpenses.DivRound(decimal.NewFromInt(int64(stats.MemberCount)), 2)
	} else {
		stats.AveragePerMember = decimal.Zero
	}
	return stats
}

// AggregateWithBaseline aggregates like Aggregate and additionally marks each
// category's spend as trending up or down relative to the baseline period.
func AggregateWithBaseline(group *models.Group, expenses []models.Expense, baseline Stats) Stats {
	stats := Aggregate(group, expenses)
	stats.Trends = make(map[models.Category]Trend)
	for _, c := range models.Categories() {
		current := stats.ExpensesByCategory[c]
		prior, ok := baseline.ExpensesByCategory[c]
		if !ok {
			prior = decimal.Zero
		}
		switch {
		case current.GreaterThan(prior):
			stats.Trends[c] = TrendUp
		case current.LessThan(prior):
			stats.Trends[c] = TrendDown
		}
	}
	return stats
}
