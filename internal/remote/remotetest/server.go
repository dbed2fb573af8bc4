// Package remotetest provides a SQLite-backed implementation of the store
// of record's REST API. It backs the integration tests and the devstore
// binary; production deployments point the client at the real service
// instead.
package remotetest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/divvyup/ledger/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    start_date TEXT,
    end_date TEXT,
    budget TEXT NOT NULL DEFAULT '0',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    name TEXT NOT NULL,
    pos INTEGER NOT NULL,
    PRIMARY KEY (group_id, name),
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    title TEXT NOT NULL,
    amount TEXT NOT NULL,
    category TEXT NOT NULL,
    date TEXT NOT NULL,
    paid_by TEXT NOT NULL,
    split_type TEXT NOT NULL,
    splits TEXT NOT NULL,
    receipt_url TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_group_members_group_id ON group_members(group_id);
CREATE INDEX IF NOT EXISTS idx_expenses_group_id ON expenses(group_id);
`

// Server serves the store of record's REST API from a SQLite database.
type Server struct {
	db  *sql.DB
	mux *chi.Mux

	mu       sync.Mutex
	failCode int
}

// New opens (creating if needed) the database at dbPath and prepares the
// schema.
func New(dbPath string) (*Server, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Server{db: db, mux: chi.NewRouter()}
	s.routes()
	return s, nil
}

// Close closes the underlying database.
func (s *Server) Close() error { return s.db.Close() }

// Handler returns the HTTP handler serving the REST API.
func (s *Server) Handler() http.Handler { return s.mux }

// FailNext makes the next request fail with the given status code.
// Used by tests to exercise rollback and conflict paths.
func (s *Server) FailNext(status int) {
	s.mu.Lock()
	s.failCode = status
	s.mu.Unlock()
}

func (s *Server) routes() {
	s.mux.Use(s.failureInjector)
	s.mux.Route("/groups", func(r chi.Router) {
		r.Get("/", s.listGroups)
		r.Post("/", s.createGroup)
		r.Route("/{groupID}", func(r chi.Router) {
			r.Put("/", s.updateGroup)
			r.Delete("/", s.deleteGroup)
			r.Post("/expenses", s.createExpense)
			r.Put("/expenses/{expenseID}", s.updateExpense)
			r.Delete("/expenses/{expenseID}", s.deleteExpense)
		})
	})
}

func (s *Server) failureInjector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		code := s.failCode
		s.failCode = 0
		s.mu.Unlock()
		if code != 0 {
			http.Error(w, "injected failure", code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), "SELECT id FROM groups ORDER BY created_at DESC, id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	groups := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		group, err := s.loadGroup(r, id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		groups = append(groups, *group)
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var group models.Group
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	group.ID = uuid.New().String()
	group.CreatedAt = time.Now().Unix()
	group.Expenses = nil

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(r.Context(),
		"INSERT INTO groups (id, name, description, type, start_date, end_date, budget, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		group.ID, group.Name, group.Description, string(group.Type),
		nullableTime(group.StartDate), nullableTime(group.EndDate),
		group.Budget.String(), group.CreatedAt, group.UpdatedAt,
	); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := insertMembers(tx, r, group.ID, group.Members); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	created, err := s.loadGroup(r, group.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "groupID")
	var group models.Group
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(r.Context(),
		"UPDATE groups SET name = ?, description = ?, type = ?, start_date = ?, end_date = ?, budget = ?, updated_at = ? WHERE id = ?",
		group.Name, group.Description, string(group.Type),
		nullableTime(group.StartDate), nullableTime(group.EndDate),
		group.Budget.String(), time.Now().Unix(), id,
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		http.NotFound(w, r)
		return
	}
	if _, err := tx.ExecContext(r.Context(), "DELETE FROM group_members WHERE group_id = ?", id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := insertMembers(tx, r, id, group.Members); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	updated, err := s.loadGroup(r, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	res, err := s.db.ExecContext(r.Context(), "DELETE FROM groups WHERE id = ?", chi.URLParam(r, "groupID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if !s.groupExists(r, groupID) {
		http.NotFound(w, r)
		return
	}

	var expense models.Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expense.ID = uuid.New().String()
	expense.GroupID = groupID
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	splits, err := json.Marshal(expense.Splits)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.db.ExecContext(r.Context(),
		"INSERT INTO expenses (id, group_id, title, amount, category, date, paid_by, split_type, splits, receipt_url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		expense.ID, groupID, expense.Title, expense.Amount.String(), string(expense.Category),
		expense.Date.UTC().Format(time.RFC3339), expense.PaidBy, string(expense.SplitType),
		string(splits), expense.ReceiptURL, expense.CreatedAt,
	); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	expenseID := chi.URLParam(r, "expenseID")

	var expense models.Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expense.ID = expenseID
	expense.GroupID = groupID

	splits, err := json.Marshal(expense.Splits)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.db.ExecContext(r.Context(),
		"UPDATE expenses SET title = ?, amount = ?, category = ?, date = ?, paid_by = ?, split_type = ?, splits = ?, receipt_url = ? WHERE id = ? AND group_id = ?",
		expense.Title, expense.Amount.String(), string(expense.Category),
		expense.Date.UTC().Format(time.RFC3339), expense.PaidBy, string(expense.SplitType),
		string(splits), expense.ReceiptURL, expenseID, groupID,
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	res, err := s.db.ExecContext(r.Context(),
		"DELETE FROM expenses WHERE id = ? AND group_id = ?",
		chi.URLParam(r, "expenseID"), chi.URLParam(r, "groupID"),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) groupExists(r *http.Request, id string) bool {
	var one int
	err := s.db.QueryRowContext(r.Context(), "SELECT 1 FROM groups WHERE id = ?", id).Scan(&one)
	return err == nil
}

// loadGroup assembles a full group, members and expenses included.
func (s *Server) loadGroup(r *http.Request, id string) (*models.Group, error) {
	group := &models.Group{Expenses: []models.Expense{}}
	var startDate, endDate sql.NullString
	var budget, groupType string
	err := s.db.QueryRowContext(r.Context(),
		"SELECT id, name, description, type, start_date, end_date, budget, created_at, updated_at FROM groups WHERE id = ?",
		id,
	).Scan(&group.ID, &group.Name, &group.Description, &groupType, &startDate, &endDate, &budget, &group.CreatedAt, &group.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	group.Type = models.GroupType(groupType)
	if group.Budget, err = decimal.NewFromString(budget); err != nil {
		return nil, fmt.Errorf("parse budget: %w", err)
	}
	if group.StartDate, err = parseNullableTime(startDate); err != nil {
		return nil, err
	}
	if group.EndDate, err = parseNullableTime(endDate); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(r.Context(),
		"SELECT name FROM group_members WHERE group_id = ? ORDER BY pos", id)
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		group.Members = append(group.Members, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	expRows, err := s.db.QueryContext(r.Context(),
		"SELECT id, title, amount, category, date, paid_by, split_type, splits, receipt_url, created_at FROM expenses WHERE group_id = ? ORDER BY created_at, id", id)
	if err != nil {
		return nil, fmt.Errorf("get expenses: %w", err)
	}
	defer expRows.Close()
	for expRows.Next() {
		var e models.Expense
		var amount, category, date, splitType, splits string
		if err := expRows.Scan(&e.ID, &e.Title, &amount, &category, &date, &e.PaidBy, &splitType, &splits, &e.ReceiptURL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.GroupID = id
		e.Category = models.Category(category)
		e.SplitType = models.SplitType(splitType)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if e.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("parse date: %w", err)
		}
		if err := json.Unmarshal([]byte(splits), &e.Splits); err != nil {
			return nil, fmt.Errorf("parse splits: %w", err)
		}
		group.Expenses = append(group.Expenses, e)
	}
	if err := expRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return group, nil
}

func insertMembers(tx *sql.Tx, r *http.Request, groupID string, members []string) error {
	for i, name := range members {
		if _, err := tx.ExecContext(r.Context(),
			"INSERT INTO group_members (group_id, name, pos) VALUES (?, ?, ?)",
			groupID, name, i,
		); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
