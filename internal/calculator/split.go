// Package calculator holds the pure computation core of the ledger:
// split computation, balance aggregation and budget evaluation. Nothing in
// this package performs I/O or mutates shared state.
package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/divvyup/ledger/internal/models"
)

// percentEpsilon is how far percentage shares may drift from 100 and custom
// shares from the amount, in absolute terms.
var percentEpsilon = decimal.New(1, -2) // 0.01

// SplitInput carries the strategy-specific input for ComputeSplits.
type SplitInput struct {
	// Participants optionally restricts an equal split to a subset of the
	// group. Empty means every member participates. Ignored for the other
	// strategies.
	Participants []string

	// Percentages maps member name to percentage points for
	// models.SplitPercentage.
	Percentages map[string]decimal.Decimal

	// Amounts maps member name to a monetary share for models.SplitCustom.
	Amounts map[string]decimal.Decimal
}

// ComputeSplits turns an amount and a split strategy into validated
// per-member monetary shares.
//
// For equal and percentage splits the result reconciles to the amount
// exactly: shares are computed in integer cents, floored, and the leftover
// cents are assigned one each to the earliest participating members in the
// group's member order. Custom splits are validated, never corrected.
func ComputeSplits(amount decimal.Decimal, splitType models.SplitType, members []string, input SplitInput) (map[string]decimal.Decimal, error) {
	if len(members) == 0 {
		return nil, models.Errf("empty-members", "cannot split among zero members")
	}
	if !amount.IsPositive() {
		return nil, models.Errf("non-positive-amount", "amount must be positive, got %s", amount)
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, models.Errf("sub-cent-amount", "amount %s has sub-cent precision", amount)
	}

	switch splitType {
	case models.SplitEqual:
		return equalSplit(amount, members, input.Participants)
	case models.SplitPercentage:
		return percentageSplit(amount, members, input.Percentages)
	case models.SplitCustom:
		return customSplit(amount, members, input.Amounts)
	default:
		return nil, models.Errf("unknown-split-type", "unknown split type %q", splitType)
	}
}

// equalSplit divides the amount evenly. participants may be empty, meaning
// the whole member list participates.
func equalSplit(amount decimal.Decimal, members, participants []string) (map[string]decimal.Decimal, error) {
	participating, err := resolveParticipants(members, participants)
	if err != nil {
		return nil, err
	}

	totalCents := amount.Shift(2).IntPart()
	n := int64(len(participating))
	per := totalCents / n
	residual := totalCents % n

	splits := make(map[string]decimal.Decimal, len(participating))
	for i, member := range participating {
		cents := per
		if int64(i) < residual {
			cents++
		}
		splits[member] = decimal.New(cents, -2)
	}
	return splits, nil
}

// percentageSplit divides the amount by percentage points. The points must
// sum to 100 within percentEpsilon. Shares are proportional to the supplied
// points, floored to the cent, with leftover cents distributed in member
// order, so the monetary sum always equals the amount exactly.
func percentageSplit(amount decimal.Decimal, members []string, percentages map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(percentages) == 0 {
		return nil, models.Errf("missing-split-input", "percentage split requires per-member percentages")
	}

	total := decimal.Zero
	for member, pct := range percentages {
		if !memberOf(member, members) {
			return nil, models.Errf("unknown-member", "percentage entry for %q, not a group member", member)
		}
		if pct.IsNegative() {
			return nil, models.Errf("negative-share", "percentage for %q is negative", member)
		}
		total = total.Add(pct)
	}
	hundred := decimal.NewFromInt(100)
	if total.Sub(hundred).Abs().GreaterThan(percentEpsilon) {
		return nil, models.Errf("percentage-sum", "percentages sum to %s, want 100", total)
	}

	// Order entries by the group's member order so residual assignment is
	// deterministic.
	ordered := make([]string, 0, len(percentages))
	for _, member := range members {
		if _, ok := percentages[member]; ok {
			ordered = append(ordered, member)
		}
	}

	totalCents := amount.Shift(2).IntPart()
	totalDec := decimal.NewFromInt(totalCents)
	splits := make(map[string]decimal.Decimal, len(ordered))
	assigned := int64(0)
	for _, member := range ordered {
		// Normalize by the actual percentage sum rather than dividing
		// by 100 so the epsilon tolerance cannot leak into the money.
		cents := totalDec.Mul(percentages[member]).Div(total).Floor().IntPart()
		splits[member] = decimal.New(cents, -2)
		assigned += cents
	}

	cent := decimal.New(1, -2)
	for i := 0; assigned < totalCents && i < len(ordered); i++ {
		splits[ordered[i]] = splits[ordered[i]].Add(cent)
		assigned++
	}
	// Division rounds before Floor, so a quotient can in rare cases land a
	// cent high; walk back from the last member until the sum reconciles.
	for assigned > totalCents {
		reduced := false
		for i := len(ordered) - 1; i >= 0 && assigned > totalCents; i-- {
			if splits[ordered[i]].IsPositive() {
				splits[ordered[i]] = splits[ordered[i]].Sub(cent)
				assigned--
				reduced = true
			}
		}
		if !reduced {
			return nil, models.Errf("percentage-sum", "shares cannot reconcile to %s", amount)
		}
	}
	return splits, nil
}

// customSplit validates caller-supplied monetary shares. A mismatch is a
// rejected input, never silently corrected.
func customSplit(amount decimal.Decimal, members []string, amounts map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(amounts) == 0 {
		return nil, models.Errf("missing-split-input", "custom split requires per-member amounts")
	}

	total := decimal.Zero
	splits := make(map[string]decimal.Decimal, len(amounts))
	for member, share := range amounts {
		if !memberOf(member, members) {
			return nil, models.Errf("unknown-member", "custom entry for %q, not a group member", member)
		}
		if share.IsNegative() {
			return nil, models.Errf("negative-share", "share for %q is negative", member)
		}
		if !share.Equal(share.Round(2)) {
			return nil, models.Errf("sub-cent-amount", "share for %q has sub-cent precision", member)
		}
		total = total.Add(share)
		splits[member] = share
	}
	if total.Sub(amount).Abs().GreaterThan(percentEpsilon) {
		return nil, models.Errf("custom-sum", "shares sum to %s, want %s", total, amount)
	}
	return splits, nil
}

func resolveParticipants(members, participants []string) ([]string, error) {
	if len(participants) == 0 {
		return members, nil
	}
	requested := make(map[string]bool, len(participants))
	for _, p := range participants {
		if !memberOf(p, members) {
			return nil, models.Errf("unknown-member", "participant %q is not a group member", p)
		}
		requested[p] = true
	}
	// Keep the group's member order regardless of the order the caller
	// listed participants in.
	ordered := make([]string, 0, len(requested))
	for _, member := range members {
		if requested[member] {
			ordered = append(ordered, member)
		}
	}
	return ordered, nil
}

func memberOf(name string, members []string) bool {
	for _, m := range members {
		if m == name {
			return true
		}
	}
	return false
}
