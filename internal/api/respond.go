package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/divvyup/ledger/internal/ledger"
	"github.com/divvyup/ledger/internal/models"
	"github.com/divvyup/ledger/internal/remote"
)

type errorResponse struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.Errf("malformed-body", "decode request: %v", err)
	}
	return nil
}

// writeError maps the error taxonomy onto HTTP status codes: rejected
// inputs are 4xx, store-of-record unavailability is 502 so clients can tell
// "you sent garbage" from "try again later".
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		resp.Rule = verr.Rule
	}

	status := http.StatusInternalServerError
	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrGroupNotFound),
		errors.Is(err, ledger.ErrExpenseNotFound),
		errors.Is(err, remote.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, remote.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, remote.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, remote.ErrRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, remote.ErrUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}
