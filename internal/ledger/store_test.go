package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/divvyup/ledger/internal/calculator"
	"github.com/divvyup/ledger/internal/models"
)

// fakeRemote is an in-memory stand-in for the store of record. It assigns
// sequential server ids, can fail the next call on demand, and can block a
// call until released (for serialization tests).
type fakeRemote struct {
	mu      sync.Mutex
	groups  map[string]*models.Group
	nextID  int
	calls   []string
	failErr error

	gate chan struct{} // when set, the next mutating call waits on it
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{groups: make(map[string]*models.Group)}
}

func (f *fakeRemote) failNext(err error) {
	f.mu.Lock()
	f.failErr = err
	f.mu.Unlock()
}

// enter records the call, honors the gate, and consumes any scripted error.
// Like the real client, a gated call gives up when the context is canceled.
func (f *fakeRemote) enter(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	gate := f.gate
	f.gate = nil
	err := f.failErr
	f.failErr = nil
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return fmt.Errorf("remote call aborted: %w", ctx.Err())
		}
	}
	return err
}

func (f *fakeRemote) assignID() string {
	f.nextID++
	return fmt.Sprintf("srv-%d", f.nextID)
}

func (f *fakeRemote) ListGroups(ctx context.Context) ([]models.Group, error) {
	if err := f.enter(ctx, "ListGroups"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, *g.Clone())
	}
	return out, nil
}

func (f *fakeRemote) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	if err := f.enter(ctx, "CreateGroup"); err != nil {
		return models.Group{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	group.ID = f.assignID()
	f.groups[group.ID] = group.Clone()
	return *group.Clone(), nil
}

func (f *fakeRemote) UpdateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	if err := f.enter(ctx, "UpdateGroup "+group.Name); err != nil {
		return models.Group{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[group.ID] = group.Clone()
	return *group.Clone(), nil
}

func (f *fakeRemote) DeleteGroup(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteGroup"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, id)
	return nil
}

func (f *fakeRemote) CreateExpense(ctx context.Context, groupID string, expense models.Expense) (models.Expense, error) {
	if err := f.enter(ctx, "CreateExpense"); err != nil {
		return models.Expense{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	expense.ID = f.assignID()
	expense.GroupID = groupID
	if g, ok := f.groups[groupID]; ok {
		g.Expenses = append(g.Expenses, *expense.Clone())
	}
	return *expense.Clone(), nil
}

func (f *fakeRemote) UpdateExpense(ctx context.Context, groupID string, expense models.Expense) (models.Expense, error) {
	if err := f.enter(ctx, "UpdateExpense"); err != nil {
		return models.Expense{}, err
	}
	return *expense.Clone(), nil
}

func (f *fakeRemote) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	return f.enter(ctx, "DeleteExpense")
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errRemoteDown = errors.New("remote down")

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStore(t *testing.T) (*Store, *fakeRemote) {
	t.Helper()
	remote := newFakeRemote()
	store := New(Config{Remote: remote})
	return store, remote
}

func roommatesDraft(members ...string) GroupDraft {
	return GroupDraft{
		Name:    "Flat 4B",
		Type:    models.GroupRoommates,
		Members: members,
	}
}

func groceriesDraft(paidBy string) ExpenseDraft {
	return ExpenseDraft{
		Title:     "weekly shop",
		Amount:    dec("100.00"),
		Category:  models.CategoryGroceries,
		Date:      time.Date(2024, 4, 6, 0, 0, 0, 0, time.UTC),
		PaidBy:    paidBy,
		SplitType: models.SplitEqual,
	}
}

func TestCreateGroup_SwapsTemporaryID(t *testing.T) {
	store, _ := newTestStore(t)

	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice", "Bob"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if strings.HasPrefix(group.ID, "local-") {
		t.Errorf("confirmed group still has temporary id %q", group.ID)
	}

	got, err := store.GetGroup(group.ID)
	if err != nil {
		t.Fatalf("GetGroup(%q) failed: %v", group.ID, err)
	}
	if got.Name != "Flat 4B" {
		t.Errorf("name = %q, want Flat 4B", got.Name)
	}
	if store.PendingMutations() != 0 {
		t.Errorf("pending mutations = %d, want 0", store.PendingMutations())
	}
}

func TestCreateGroup_RollsBackOnRemoteFailure(t *testing.T) {
	store, remote := newTestStore(t)
	remote.failNext(errRemoteDown)

	_, err := store.CreateGroup(context.Background(), roommatesDraft("Alice"))
	if !errors.Is(err, errRemoteDown) {
		t.Fatalf("error = %v, want %v", err, errRemoteDown)
	}
	if got := store.ListGroups(); len(got) != 0 {
		t.Errorf("store holds %d groups after rollback, want 0", len(got))
	}
	if store.PendingMutations() != 0 {
		t.Errorf("pending mutations = %d, want 0", store.PendingMutations())
	}
}

func TestCreateGroup_ValidationNeverReachesRemote(t *testing.T) {
	store, remote := newTestStore(t)

	_, err := store.CreateGroup(context.Background(), GroupDraft{
		Name:    "No Members",
		Type:    models.GroupOther,
		Members: nil,
	})
	if !models.IsValidation(err) {
		t.Fatalf("error = %v, want a validation error", err)
	}
	if remote.callCount() != 0 {
		t.Errorf("remote saw %d calls, want 0", remote.callCount())
	}
}

func TestUpdateGroup_RollbackRestoresExactState(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice", "Bob"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := store.AddExpense(context.Background(), group.ID, groceriesDraft("Alice")); err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}

	before, err := store.GetGroup(group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}

	remote.failNext(errRemoteDown)
	name := "Renamed"
	_, err = store.UpdateGroup(context.Background(), group.ID, GroupPatch{Name: &name})
	if !errors.Is(err, errRemoteDown) {
		t.Fatalf("error = %v, want %v", err, errRemoteDown)
	}

	after, err := store.GetGroup(group.ID)
	if err != nil {
		t.Fatalf("GetGroup after rollback failed: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("state after rollback differs from pre-mutation state:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestUpdateGroup_RejectsRemovingReferencedMember(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice", "Bob"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := store.AddExpense(context.Background(), group.ID, groceriesDraft("Bob")); err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	callsBefore := remote.callCount()

	// Bob paid an expense and holds a split, so he cannot be removed.
	_, err = store.UpdateGroup(context.Background(), group.ID, GroupPatch{Members: []string{"Alice"}})
	if !models.IsValidation(err) {
		t.Fatalf("error = %v, want a validation error", err)
	}
	if remote.callCount() != callsBefore {
		t.Error("rejected update still reached the remote store")
	}

	got, _ := store.GetGroup(group.ID)
	if len(got.Members) != 2 {
		t.Errorf("members = %v, want Alice and Bob intact", got.Members)
	}
}

func TestAddExpense_ComputesSplitsAndSwapsID(t *testing.T) {
	store, _ := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice", "Bob", "Charlie"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	expense, err := store.AddExpense(context.Background(), group.ID, groceriesDraft("Alice"))
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	if strings.HasPrefix(expense.ID, "local-") {
		t.Errorf("confirmed expense still has temporary id %q", expense.ID)
	}
	if expense.GroupID != group.ID {
		t.Errorf("expense.GroupID = %q, want %q", expense.GroupID, group.ID)
	}

	sum := decimal.Zero
	for _, share := range expense.Splits {
		sum = sum.Add(share)
	}
	if !sum.Equal(dec("100.00")) {
		t.Errorf("splits sum to %s, want exactly 100.00", sum)
	}
	if !expense.Splits["Alice"].Equal(dec("33.34")) {
		t.Errorf("Alice's share = %s, want 33.34 (first member takes the residual cent)", expense.Splits["Alice"])
	}
}

func TestAddExpense_RollsBackOnRemoteFailure(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice", "Bob"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	before, _ := store.GetGroup(group.ID)

	remote.failNext(errRemoteDown)
	_, err = store.AddExpense(context.Background(), group.ID, groceriesDraft("Alice"))
	if !errors.Is(err, errRemoteDown) {
		t.Fatalf("error = %v, want %v", err, errRemoteDown)
	}

	after, _ := store.GetGroup(group.ID)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("group changed after rolled-back AddExpense:\nbefore: %+v\nafter:  %+v", before, after)
	}
	if store.PendingMutations() != 0 {
		t.Errorf("pending mutations = %d, want 0", store.PendingMutations())
	}
}

func TestAddExpense_InvalidCustomSplitRejected(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("A", "B"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	callsBefore := remote.callCount()

	draft := ExpenseDraft{
		Title:     "dinner",
		Amount:    dec("50.00"),
		Category:  models.CategoryFood,
		Date:      time.Now(),
		PaidBy:    "A",
		SplitType: models.SplitCustom,
		Split: calculator.SplitInput{Amounts: map[string]decimal.Decimal{
			"A": dec("20.00"),
			"B": dec("25.00"),
		}},
	}
	_, err = store.AddExpense(context.Background(), group.ID, draft)
	if !models.IsValidation(err) {
		t.Fatalf("error = %v, want a validation error", err)
	}
	if remote.callCount() != callsBefore {
		t.Error("rejected expense still reached the remote store")
	}
	got, _ := store.GetGroup(group.ID)
	if len(got.Expenses) != 0 {
		t.Errorf("group has %d expenses, want 0", len(got.Expenses))
	}
}

func TestUpdateExpense_PreservesReceipt(t *testing.T) {
	store, _ := newTestStore(t)
	store.uploader = uploaderFunc(func(context.Context, string, string) (string, error) {
		return "https://files.example/r1.png", nil
	})

	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice", "Bob"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	expense, err := store.AddExpense(context.Background(), group.ID, groceriesDraft("Alice"))
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	if _, err := store.AttachReceipt(context.Background(), group.ID, expense.ID, "r1.png", "image/png", strings.NewReader("img")); err != nil {
		t.Fatalf("AttachReceipt failed: %v", err)
	}

	draft := groceriesDraft("Bob")
	draft.Amount = dec("80.00")
	updated, err := store.UpdateExpense(context.Background(), group.ID, expense.ID, draft)
	if err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}
	if updated.ReceiptURL != "https://files.example/r1.png" {
		t.Errorf("receipt = %q, want preserved", updated.ReceiptURL)
	}
	if !updated.Amount.Equal(dec("80.00")) {
		t.Errorf("amount = %s, want 80.00", updated.Amount)
	}
}

func TestDeleteGroup_RollsBackOnConflict(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	remote.failNext(errRemoteDown)
	if err := store.DeleteGroup(context.Background(), group.ID); !errors.Is(err, errRemoteDown) {
		t.Fatalf("error = %v, want %v", err, errRemoteDown)
	}
	if _, err := store.GetGroup(group.ID); err != nil {
		t.Errorf("group missing after rolled-back delete: %v", err)
	}

	if err := store.DeleteGroup(context.Background(), group.ID); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if _, err := store.GetGroup(group.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("error = %v, want ErrGroupNotFound", err)
	}
}

// TestUpdateGroup_SerializesSameEntity issues a second update while the
// first is still in flight and asserts the second queues behind it: the
// remote sees the calls in arrival order and the second update's state wins.
func TestUpdateGroup_SerializesSameEntity(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice", "Bob"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	gate := make(chan struct{})
	remote.mu.Lock()
	remote.gate = gate
	remote.mu.Unlock()

	first := "First"
	second := "Second"
	firstDone := make(chan error, 1)
	go func() {
		_, err := store.UpdateGroup(context.Background(), group.ID, GroupPatch{Name: &first})
		firstDone <- err
	}()

	// Wait for the first update to reach the remote (and block on the gate).
	deadline := time.After(2 * time.Second)
	for remote.callCount() < 2 { // CreateGroup + first UpdateGroup
		select {
		case <-deadline:
			t.Fatal("first update never reached the remote")
		case <-time.After(time.Millisecond):
		}
	}

	secondDone := make(chan error, 1)
	go func() {
		_, err := store.UpdateGroup(context.Background(), group.ID, GroupPatch{Name: &second})
		secondDone <- err
	}()

	// The second update must not reach the remote while the first holds
	// the entity.
	time.Sleep(20 * time.Millisecond)
	if remote.callCount() != 2 {
		t.Fatalf("second update reached the remote before the first resolved (calls: %v)", remote.calls)
	}

	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	remote.mu.Lock()
	calls := append([]string(nil), remote.calls...)
	remote.mu.Unlock()
	want := []string{"CreateGroup", "UpdateGroup First", "UpdateGroup Second"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("remote calls = %v, want %v", calls, want)
	}

	got, _ := store.GetGroup(group.ID)
	if got.Name != "Second" {
		t.Errorf("final name = %q, want Second (last queued update wins)", got.Name)
	}
}

func TestRefresh_SeedsFromRemote(t *testing.T) {
	store, remote := newTestStore(t)
	if _, err := store.CreateGroup(context.Background(), roommatesDraft("Alice")); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	fresh := New(Config{Remote: remote})
	if err := fresh.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := fresh.ListGroups(); len(got) != 1 {
		t.Fatalf("groups after refresh = %d, want 1", len(got))
	}
}

// TestRefresh_WaitsForInFlightMutation replaces the collection while an
// update is mid-commit. The refresh must queue behind the mutation: swapping
// the map underneath a commit would let it read a vanished group (or let a
// later rollback resurrect pre-refresh state).
func TestRefresh_WaitsForInFlightMutation(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	gate := make(chan struct{})
	remote.mu.Lock()
	remote.gate = gate
	remote.mu.Unlock()

	name := "Renamed"
	updateDone := make(chan error, 1)
	go func() {
		_, err := store.UpdateGroup(context.Background(), group.ID, GroupPatch{Name: &name})
		updateDone <- err
	}()

	deadline := time.After(2 * time.Second)
	for remote.callCount() < 2 { // CreateGroup + gated UpdateGroup
		select {
		case <-deadline:
			t.Fatal("update never reached the remote")
		case <-time.After(time.Millisecond):
		}
	}

	refreshDone := make(chan error, 1)
	go func() { refreshDone <- store.Refresh(context.Background()) }()

	select {
	case <-refreshDone:
		t.Fatal("refresh completed while a mutation was still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	if err := <-updateDone; err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := <-refreshDone; err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	got, err := store.GetGroup(group.ID)
	if err != nil {
		t.Fatalf("group missing after refresh: %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed (refresh adopted the committed update)", got.Name)
	}
	if store.PendingMutations() != 0 {
		t.Errorf("pending mutations = %d, want 0", store.PendingMutations())
	}
}

// TestUpdateGroup_CancellationRollsBack cancels the caller's context while
// the remote call is blocked. The mutation must still resolve: rolled back,
// error surfaced, no record left pending.
func TestUpdateGroup_CancellationRollsBack(t *testing.T) {
	store, remote := newTestStore(t)
	group, err := store.CreateGroup(context.Background(), roommatesDraft("Alice"))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	gate := make(chan struct{}) // never closed; only cancellation releases the call
	remote.mu.Lock()
	remote.gate = gate
	remote.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	name := "Renamed"
	done := make(chan error, 1)
	go func() {
		_, err := store.UpdateGroup(ctx, group.ID, GroupPatch{Name: &name})
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for remote.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("update never reached the remote")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	got, err := store.GetGroup(group.ID)
	if err != nil {
		t.Fatalf("GetGroup after rollback failed: %v", err)
	}
	if got.Name != "Flat 4B" {
		t.Errorf("name = %q, want the pre-mutation Flat 4B", got.Name)
	}
	if store.PendingMutations() != 0 {
		t.Errorf("pending mutations = %d, want 0", store.PendingMutations())
	}
}

// uploaderFunc adapts a function to the Uploader interface for tests.
type uploaderFunc func(ctx context.Context, filename, contentType string) (string, error)

func (f uploaderFunc) Upload(ctx context.Context, filename, contentType string, _ io.Reader) (string, error) {
	return f(ctx, filename, contentType)
}
