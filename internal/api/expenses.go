package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/divvyup/ledger/internal/calculator"
	"github.com/divvyup/ledger/internal/ledger"
	"github.com/divvyup/ledger/internal/models"
)

// expenseRequest carries an expense draft. Splits are never supplied
// directly; callers send the strategy input and the ledger computes the
// shares.
type expenseRequest struct {
	Title        string                     `json:"title"`
	Amount       decimal.Decimal            `json:"amount"`
	Category     models.Category            `json:"category"`
	Date         time.Time                  `json:"date"`
	PaidBy       string                     `json:"paid_by"`
	SplitType    models.SplitType           `json:"split_type"`
	Participants []string                   `json:"participants,omitempty"`
	Percentages  map[string]decimal.Decimal `json:"percentages,omitempty"`
	Amounts      map[string]decimal.Decimal `json:"amounts,omitempty"`
}

func (req expenseRequest) draft() ledger.ExpenseDraft {
	return ledger.ExpenseDraft{
		Title:     req.Title,
		Amount:    req.Amount,
		Category:  req.Category,
		Date:      req.Date,
		PaidBy:    req.PaidBy,
		SplitType: req.SplitType,
		Split: calculator.SplitInput{
			Participants: req.Participants,
			Percentages:  req.Percentages,
			Amounts:      req.Amounts,
		},
	}
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	expense, err := s.store.AddExpense(r.Context(), chi.URLParam(r, "groupID"), req.draft())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	expense, err := s.store.UpdateExpense(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "expenseID"), req.draft())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteExpense(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "expenseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAttachReceipt accepts a multipart form with a single "receipt" file
// part, forwards it to the upload collaborator, and records the returned
// URL on the expense.
func (s *Server) handleAttachReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)
	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		writeError(w, models.Errf("malformed-body", "parse multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("receipt")
	if err != nil {
		writeError(w, models.Errf("malformed-body", "missing receipt file: %v", err))
		return
	}
	defer file.Close()

	expense, err := s.store.AttachReceipt(
		r.Context(),
		chi.URLParam(r, "groupID"),
		chi.URLParam(r, "expenseID"),
		header.Filename,
		header.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}
