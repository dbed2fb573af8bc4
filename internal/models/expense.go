package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitType selects the strategy used to divide an expense among members.
type SplitType string

const (
	// SplitEqual divides the amount evenly among the participating members.
	SplitEqual SplitType = "equal"
	// SplitPercentage divides the amount by caller-supplied percentage points.
	SplitPercentage SplitType = "percentage"
	// SplitCustom takes caller-supplied monetary shares as-is.
	SplitCustom SplitType = "custom"
)

// Valid reports whether t is a known split type.
func (t SplitType) Valid() bool {
	switch t {
	case SplitEqual, SplitPercentage, SplitCustom:
		return true
	}
	return false
}

// Expense is a single shared expense belonging to exactly one group.
// Once confirmed it changes only through an explicit edit, which recomputes
// the splits.
type Expense struct {
	// ID is assigned by the store of record (UUID format). Optimistically
	// created expenses carry a temporary "local-" prefixed ID until
	// confirmed.
	ID string `json:"id"`

	// GroupID references the owning group.
	GroupID string `json:"group_id"`

	// Title describes the expense.
	Title string `json:"title"`

	// Amount is the total expense amount. Positive, at most two decimal
	// places.
	Amount decimal.Decimal `json:"amount"`

	// Category classifies the expense.
	Category Category `json:"category"`

	// Date is when the expense occurred.
	Date time.Time `json:"date"`

	// PaidBy names the member who paid. Must be a current group member.
	PaidBy string `json:"paid_by"`

	// SplitType records the strategy the splits were computed with.
	SplitType SplitType `json:"split_type"`

	// Splits maps each participating member to their monetary share.
	// The shares sum to Amount exactly; this is the ledger's load-bearing
	// invariant.
	Splits map[string]decimal.Decimal `json:"splits"`

	// ReceiptURL is an opaque URL returned by the upload collaborator.
	// The ledger stores and forwards it, never interprets it.
	ReceiptURL string `json:"receipt_url,omitempty"`

	// CreatedAt is a Unix timestamp maintained by the store of record.
	CreatedAt int64 `json:"created_at"`
}

// Clone returns a deep copy of the expense.
func (e *Expense) Clone() *Expense {
	out := *e
	out.Splits = make(map[string]decimal.Decimal, len(e.Splits))
	for member, share := range e.Splits {
		out.Splits[member] = share
	}
	return &out
}

// SplitTotal returns the sum of the per-member shares.
func (e *Expense) SplitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, share := range e.Splits {
		total = total.Add(share)
	}
	return total
}

// Validate checks the expense's own fields.
func (e *Expense) Validate() error {
	if e.Title == "" {
		return Errf("missing-title", "expense title is required")
	}
	if !e.Amount.IsPositive() {
		return Errf("non-positive-amount", "amount must be positive, got %s", e.Amount)
	}
	if !e.Amount.Equal(e.Amount.Round(2)) {
		return Errf("sub-cent-amount", "amount %s has sub-cent precision", e.Amount)
	}
	if !e.Category.Valid() {
		return Errf("unknown-category", "unknown category %q", e.Category)
	}
	if e.PaidBy == "" {
		return Errf("missing-paid-by", "expense must name a payer")
	}
	if !e.SplitType.Valid() {
		return Errf("unknown-split-type", "unknown split type %q", e.SplitType)
	}
	if len(e.Splits) == 0 {
		return Errf("empty-splits", "expense must have at least one split entry")
	}
	return nil
}

// ValidateAgainstMembers checks the expense itself plus the invariant that
// the payer and every split key are members of the owning group.
func (e *Expense) ValidateAgainstMembers(members []string) error {
	if err := e.Validate(); err != nil {
		return err
	}
	inGroup := make(map[string]bool, len(members))
	for _, m := range members {
		inGroup[m] = true
	}
	if !inGroup[e.PaidBy] {
		return Errf("unknown-member", "payer %q is not a group member", e.PaidBy)
	}
	for member := range e.Splits {
		if !inGroup[member] {
			return Errf("unknown-member", "split references %q, not a group member", member)
		}
	}
	return nil
}
