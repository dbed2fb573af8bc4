package ledger

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/divvyup/ledger/internal/calculator"
	"github.com/divvyup/ledger/internal/models"
)

// GroupDraft is the input for creating a group.
type GroupDraft struct {
	Name        string
	Description string
	Type        models.GroupType
	StartDate   *time.Time
	EndDate     *time.Time
	Budget      decimal.Decimal
	Members     []string
}

// GroupPatch is the input for updating a group. Nil fields are left
// unchanged.
type GroupPatch struct {
	Name        *string
	Description *string
	Type        *models.GroupType
	StartDate   *time.Time
	EndDate     *time.Time
	Budget      *decimal.Decimal
	Members     []string
}

// ExpenseDraft is the input for creating or editing an expense. Splits are
// always recomputed from the draft's strategy input, never taken verbatim.
type ExpenseDraft struct {
	Title     string
	Amount    decimal.Decimal
	Category  models.Category
	Date      time.Time
	PaidBy    string
	SplitType models.SplitType
	Split     calculator.SplitInput
}

// CreateGroup optimistically inserts the group under a temporary id, then
// confirms it against the store of record, swapping in the server-assigned
// id everywhere it is referenced.
func (s *Store) CreateGroup(ctx context.Context, draft GroupDraft) (models.Group, error) {
	candidate := models.Group{
		ID:          tempID(),
		Name:        draft.Name,
		Description: draft.Description,
		Type:        draft.Type,
		StartDate:   draft.StartDate,
		EndDate:     draft.EndDate,
		Budget:      draft.Budget,
		Members:     draft.Members,
		Expenses:    []models.Expense{},
		CreatedAt:   time.Now().Unix(),
	}

	var result models.Group
	err := s.coord.run(ctx, mutation{
		entity:    "group",
		operation: "create",
		key:       candidate.ID,
		apply: func() (func(), error) {
			if err := candidate.Validate(); err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.groups[candidate.ID] = candidate.Clone()
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				delete(s.groups, candidate.ID)
				s.mu.Unlock()
			}, nil
		},
		commit: func(ctx context.Context) (func(), error) {
			confirmed, err := s.remote.CreateGroup(ctx, *candidate.Clone())
			if err != nil {
				return nil, err
			}
			return func() {
				adopted := confirmed.Clone()
				for i := range adopted.Expenses {
					adopted.Expenses[i].GroupID = adopted.ID
				}
				s.mu.Lock()
				delete(s.groups, candidate.ID)
				s.groups[adopted.ID] = adopted
				s.mu.Unlock()
				result = *adopted.Clone()
			}, nil
		},
	})
	if err != nil {
		return models.Group{}, err
	}
	return result, nil
}

// UpdateGroup applies the patch optimistically, then confirms against the
// store of record. Removing a member still referenced by an expense's payer
// or splits is rejected before any state changes.
func (s *Store) UpdateGroup(ctx context.Context, id string, patch GroupPatch) (models.Group, error) {
	var result models.Group
	err := s.coord.run(ctx, mutation{
		entity:    "group",
		operation: "update",
		key:       id,
		apply: func() (func(), error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			current, ok := s.groups[id]
			if !ok {
				return nil, ErrGroupNotFound
			}
			snapshot := current.Clone()

			updated := current.Clone()
			applyGroupPatch(updated, patch)
			updated.UpdatedAt = time.Now().Unix()
			if err := updated.Validate(); err != nil {
				return nil, err
			}

			s.groups[id] = updated
			return func() {
				s.mu.Lock()
				s.groups[id] = snapshot
				s.mu.Unlock()
			}, nil
		},
		commit: func(ctx context.Context) (func(), error) {
			s.mu.RLock()
			var outbound *models.Group
			if g, ok := s.groups[id]; ok {
				outbound = g.Clone()
			}
			s.mu.RUnlock()
			if outbound == nil {
				return nil, ErrGroupNotFound
			}

			confirmed, err := s.remote.UpdateGroup(ctx, *outbound)
			if err != nil {
				return nil, err
			}
			return func() {
				adopted := confirmed.Clone()
				for i := range adopted.Expenses {
					adopted.Expenses[i].GroupID = adopted.ID
				}
				s.mu.Lock()
				s.groups[id] = adopted
				s.mu.Unlock()
				result = *adopted.Clone()
			}, nil
		},
	})
	if err != nil {
		return models.Group{}, err
	}
	return result, nil
}

// DeleteGroup removes the group optimistically, restoring it if the store
// of record refuses.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.coord.run(ctx, mutation{
		entity:    "group",
		operation: "delete",
		key:       id,
		apply: func() (func(), error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			current, ok := s.groups[id]
			if !ok {
				return nil, ErrGroupNotFound
			}
			snapshot := current.Clone()
			delete(s.groups, id)
			return func() {
				s.mu.Lock()
				s.groups[id] = snapshot
				s.mu.Unlock()
			}, nil
		},
		commit: func(ctx context.Context) (func(), error) {
			return nil, s.remote.DeleteGroup(ctx, id)
		},
	})
}

// AddExpense computes the splits for the draft, appends the expense
// optimistically under a temporary id, and confirms it against the store of
// record. Expense mutations serialize on the owning group's id: snapshots
// are group-level, so this is the locking that keeps rollback well-defined.
func (s *Store) AddExpense(ctx context.Context, groupID string, draft ExpenseDraft) (models.Expense, error) {
	var result models.Expense
	tmp := tempID()
	err := s.coord.run(ctx, mutation{
		entity:    "expense",
		operation: "create",
		key:       groupID,
		apply: func() (func(), error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			group, ok := s.groups[groupID]
			if !ok {
				return nil, ErrGroupNotFound
			}
			expense, err := buildExpense(tmp, groupID, draft, group.Members)
			if err != nil {
				return nil, err
			}

			snapshot := group.Clone()
			group.Expenses = append(group.Expenses, *expense)
			return func() {
				s.mu.Lock()
				s.groups[groupID] = snapshot
				s.mu.Unlock()
			}, nil
		},
		commit: func(ctx context.Context) (func(), error) {
			s.mu.RLock()
			group, ok := s.groups[groupID]
			var outbound *models.Expense
			if ok {
				if e := group.Expense(tmp); e != nil {
					outbound = e.Clone()
				}
			}
			s.mu.RUnlock()
			if outbound == nil {
				return nil, ErrExpenseNotFound
			}

			confirmed, err := s.remote.CreateExpense(ctx, groupID, *outbound)
			if err != nil {
				return nil, err
			}
			return func() {
				adopted := confirmed.Clone()
				adopted.GroupID = groupID
				s.mu.Lock()
				if group, ok := s.groups[groupID]; ok {
					if e := group.Expense(tmp); e != nil {
						*e = *adopted
					}
				}
				s.mu.Unlock()
				result = *adopted.Clone()
			}, nil
		},
	})
	if err != nil {
		return models.Expense{}, err
	}
	return result, nil
}

// UpdateExpense recomputes splits from the draft and replaces the expense,
// preserving its receipt reference and creation time.
func (s *Store) UpdateExpense(ctx context.Context, groupID, expenseID string, draft ExpenseDraft) (models.Expense, error) {
	var result models.Expense
	err := s.coord.run(ctx, mutation{
		entity:    "expense",
		operation: "update",
		key:       groupID,
		apply: func() (func(), error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			group, ok := s.groups[groupID]
			if !ok {
				return nil, ErrGroupNotFound
			}
			existing := group.Expense(expenseID)
			if existing == nil {
				return nil, ErrExpenseNotFound
			}
			updated, err := buildExpense(expenseID, groupID, draft, group.Members)
			if err != nil {
				return nil, err
			}
			updated.ReceiptURL = existing.ReceiptURL
			updated.CreatedAt = existing.CreatedAt

			snapshot := group.Clone()
			*existing = *updated
			return func() {
				s.mu.Lock()
				s.groups[groupID] = snapshot
				s.mu.Unlock()
			}, nil
		},
		commit: s.commitExpenseUpdate(groupID, expenseID, &result),
	})
	if err != nil {
		return models.Expense{}, err
	}
	return result, nil
}

// DeleteExpense removes the expense optimistically, restoring the group
// snapshot if the store of record refuses.
func (s *Store) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	return s.coord.run(ctx, mutation{
		entity:    "expense",
		operation: "delete",
		key:       groupID,
		apply: func() (func(), error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			group, ok := s.groups[groupID]
			if !ok {
				return nil, ErrGroupNotFound
			}
			idx := -1
			for i := range group.Expenses {
				if group.Expenses[i].ID == expenseID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, ErrExpenseNotFound
			}

			snapshot := group.Clone()
			group.Expenses = append(group.Expenses[:idx], group.Expenses[idx+1:]...)
			return func() {
				s.mu.Lock()
				s.groups[groupID] = snapshot
				s.mu.Unlock()
			}, nil
		},
		commit: func(ctx context.Context) (func(), error) {
			return nil, s.remote.DeleteExpense(ctx, groupID, expenseID)
		},
	})
}

// AttachReceipt uploads the file to the upload collaborator, then records
// the returned URL on the expense through the usual mutation protocol.
func (s *Store) AttachReceipt(ctx context.Context, groupID, expenseID, filename, contentType string, file io.Reader) (models.Expense, error) {
	if s.uploader == nil {
		return models.Expense{}, errors.New("no upload collaborator configured")
	}
	receiptURL, err := s.uploader.Upload(ctx, filename, contentType, file)
	if err != nil {
		return models.Expense{}, err
	}

	var result models.Expense
	err = s.coord.run(ctx, mutation{
		entity:    "expense",
		operation: "update",
		key:       groupID,
		apply: func() (func(), error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			group, ok := s.groups[groupID]
			if !ok {
				return nil, ErrGroupNotFound
			}
			existing := group.Expense(expenseID)
			if existing == nil {
				return nil, ErrExpenseNotFound
			}

			snapshot := group.Clone()
			existing.ReceiptURL = receiptURL
			return func() {
				s.mu.Lock()
				s.groups[groupID] = snapshot
				s.mu.Unlock()
			}, nil
		},
		commit: s.commitExpenseUpdate(groupID, expenseID, &result),
	})
	if err != nil {
		return models.Expense{}, err
	}
	return result, nil
}

// commitExpenseUpdate pushes the optimistically updated expense to the
// store of record and adopts the confirmed version on success.
func (s *Store) commitExpenseUpdate(groupID, expenseID string, result *models.Expense) func(ctx context.Context) (func(), error) {
	return func(ctx context.Context) (func(), error) {
		s.mu.RLock()
		var outbound *models.Expense
		if group, ok := s.groups[groupID]; ok {
			if e := group.Expense(expenseID); e != nil {
				outbound = e.Clone()
			}
		}
		s.mu.RUnlock()
		if outbound == nil {
			return nil, ErrExpenseNotFound
		}

		confirmed, err := s.remote.UpdateExpense(ctx, groupID, *outbound)
		if err != nil {
			return nil, err
		}
		return func() {
			adopted := confirmed.Clone()
			adopted.GroupID = groupID
			s.mu.Lock()
			if group, ok := s.groups[groupID]; ok {
				if e := group.Expense(expenseID); e != nil {
					*e = *adopted
				}
			}
			s.mu.Unlock()
			*result = *adopted.Clone()
		}, nil
	}
}

// buildExpense computes splits for the draft and assembles a validated
// expense.
func buildExpense(id, groupID string, draft ExpenseDraft, members []string) (*models.Expense, error) {
	splits, err := calculator.ComputeSplits(draft.Amount, draft.SplitType, members, draft.Split)
	if err != nil {
		return nil, err
	}
	expense := &models.Expense{
		ID:        id,
		GroupID:   groupID,
		Title:     draft.Title,
		Amount:    draft.Amount,
		Category:  draft.Category,
		Date:      draft.Date,
		PaidBy:    draft.PaidBy,
		SplitType: draft.SplitType,
		Splits:    splits,
		CreatedAt: time.Now().Unix(),
	}
	if err := expense.ValidateAgainstMembers(members); err != nil {
		return nil, err
	}
	return expense, nil
}

// applyGroupPatch copies the patch's set fields onto the group.
func applyGroupPatch(group *models.Group, patch GroupPatch) {
	if patch.Name != nil {
		group.Name = *patch.Name
	}
	if patch.Description != nil {
		group.Description = *patch.Description
	}
	if patch.Type != nil {
		group.Type = *patch.Type
	}
	if patch.StartDate != nil {
		group.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		group.EndDate = patch.EndDate
	}
	if patch.Budget != nil {
		group.Budget = *patch.Budget
	}
	if patch.Members != nil {
		group.Members = append([]string(nil), patch.Members...)
	}
}
