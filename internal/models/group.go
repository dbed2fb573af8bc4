package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupType tags a group with its purpose. Some types carry extra
// requirements: travel groups need a date range, and travel/event/party
// groups need a budget.
type GroupType string

const (
	GroupTravel    GroupType = "travel"
	GroupRoommates GroupType = "roommates"
	GroupCouple    GroupType = "couple"
	GroupWork      GroupType = "work"
	GroupEvent     GroupType = "event"
	GroupParty     GroupType = "party"
	GroupOther     GroupType = "other"
)

var groupTypes = []GroupType{
	GroupTravel, GroupRoommates, GroupCouple, GroupWork, GroupEvent, GroupParty, GroupOther,
}

// Valid reports whether t is a known group type.
func (t GroupType) Valid() bool {
	for _, known := range groupTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RequiresDates reports whether groups of this type must carry a date range.
func (t GroupType) RequiresDates() bool { return t == GroupTravel }

// RequiresBudget reports whether groups of this type must carry a budget.
func (t GroupType) RequiresBudget() bool {
	return t == GroupTravel || t == GroupEvent || t == GroupParty
}

// Group is a set of members sharing expenses. A group exclusively owns its
// member list and its expense collection.
type Group struct {
	// ID is the unique identifier assigned by the store of record
	// (UUID format). Optimistically created groups carry a temporary
	// "local-" prefixed ID until the store confirms them.
	ID string `json:"id"`

	// Name is the display name of the group (e.g. "Goa Trip", "Flat 4B").
	Name string `json:"name"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// Type tags the group's purpose.
	Type GroupType `json:"type"`

	// StartDate and EndDate bound the group's activity period.
	// Required for travel groups, optional otherwise.
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	// Budget is the monetary ceiling for the group's total spend.
	// Zero means no budget is set.
	Budget decimal.Decimal `json:"budget"`

	// Members is the list of participant names. Order is not semantically
	// meaningful, but it is the deterministic order used for residual
	// distribution when splitting expenses.
	Members []string `json:"members"`

	// Expenses is the collection of expenses belonging to this group.
	Expenses []Expense `json:"expenses"`

	// CreatedAt and UpdatedAt are Unix timestamps maintained by the store
	// of record.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// HasMember reports whether name is a current member of the group.
func (g *Group) HasMember(name string) bool {
	for _, m := range g.Members {
		if m == name {
			return true
		}
	}
	return false
}

// Expense returns a pointer to the expense with the given ID, or nil.
func (g *Group) Expense(id string) *Expense {
	for i := range g.Expenses {
		if g.Expenses[i].ID == id {
			return &g.Expenses[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the group, including its expenses.
func (g *Group) Clone() *Group {
	out := *g
	if g.StartDate != nil {
		t := *g.StartDate
		out.StartDate = &t
	}
	if g.EndDate != nil {
		t := *g.EndDate
		out.EndDate = &t
	}
	out.Members = make([]string, len(g.Members))
	copy(out.Members, g.Members)
	out.Expenses = make([]Expense, len(g.Expenses))
	for i := range g.Expenses {
		out.Expenses[i] = *g.Expenses[i].Clone()
	}
	return &out
}

// Validate checks the group's own fields and the cross-entity invariant
// that every expense's payer and split keys are current members.
func (g *Group) Validate() error {
	if g.Name == "" {
		return Errf("missing-name", "group name is required")
	}
	if !g.Type.Valid() {
		return Errf("unknown-group-type", "unknown group type %q", g.Type)
	}
	if len(g.Members) == 0 {
		return Errf("empty-members", "group must have at least one member")
	}
	seen := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if m == "" {
			return Errf("empty-member-name", "member names must be non-empty")
		}
		if seen[m] {
			return Errf("duplicate-member", "member %q listed twice", m)
		}
		seen[m] = true
	}
	if g.Type.RequiresDates() && (g.StartDate == nil || g.EndDate == nil) {
		return Errf("dates-required", "%s groups require a start and end date", g.Type)
	}
	if g.StartDate != nil && g.EndDate != nil && g.EndDate.Before(*g.StartDate) {
		return Errf("invalid-date-range", "end date precedes start date")
	}
	if g.Type.RequiresBudget() && !g.Budget.IsPositive() {
		return Errf("budget-required", "%s groups require a budget", g.Type)
	}
	if g.Budget.IsNegative() {
		return Errf("negative-budget", "budget cannot be negative")
	}
	for i := range g.Expenses {
		if err := g.Expenses[i].ValidateAgainstMembers(g.Members); err != nil {
			return err
		}
	}
	return nil
}
