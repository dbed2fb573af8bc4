// Package models defines the core domain models for the shared-expense ledger.
//
// # Models
//
//   - Group: a set of members sharing expenses, with an optional budget
//   - Expense: a single shared expense belonging to exactly one group
//
// Members are identified by name strings scoped to their group; they have no
// lifecycle of their own beyond the group's member list.
//
// # Design Principles
//
//  1. **Closed enumerations**: Category, GroupType and SplitType are validated
//     at the boundary instead of flowing through as free-form strings.
//  2. **Exact money**: all monetary values are decimal.Decimal with at most
//     two decimal places; float64 never touches an amount.
//  3. **Avoid circular references**: expenses carry their owning group's ID
//     rather than a pointer back to the group.
//  4. **Snapshot-friendly**: Clone produces a deep copy so optimistic
//     mutations can keep an exact pre-mutation snapshot for rollback.
package models
