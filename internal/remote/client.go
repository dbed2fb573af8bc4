// Package remote implements the JSON REST client for the store of record.
//
// The store is an external collaborator reachable only through
// request/response calls; this package is the single place that knows its
// resource paths and maps its failures onto the ledger's error taxonomy.
// It never retries and never refreshes credentials.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/divvyup/ledger/internal/metrics"
	"github.com/divvyup/ledger/internal/models"
)

// TokenSource supplies the opaque bearer credential attached to every call.
// The credential is owned by the external session collaborator; the client
// only forwards it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to the TokenSource interface.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a TokenSource returning a fixed credential.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client talks to the store of record.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	metrics *metrics.Ledger
}

// NewClient creates a remote store client. metrics may be nil.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration, m *metrics.Ledger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		metrics: m,
	}
}

// ListGroups fetches every group visible to the current session, expenses
// included.
func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := c.do(ctx, http.MethodGet, "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup persists a new group and returns the stored version with the
// server-assigned ID.
func (c *Client) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	var created models.Group
	group.ID = "" // the store of record assigns ids
	if err := c.do(ctx, http.MethodPost, "/groups", group, &created); err != nil {
		return models.Group{}, err
	}
	return created, nil
}

// UpdateGroup replaces a group and returns the stored version.
func (c *Client) UpdateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	var updated models.Group
	path := "/groups/" + url.PathEscape(group.ID)
	if err := c.do(ctx, http.MethodPut, path, group, &updated); err != nil {
		return models.Group{}, err
	}
	return updated, nil
}

// DeleteGroup removes a group and all its expenses.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/groups/"+url.PathEscape(id), nil, nil)
}

// CreateExpense persists a new expense under a group and returns the stored
// version with the server-assigned ID.
func (c *Client) CreateExpense(ctx context.Context, groupID string, expense models.Expense) (models.Expense, error) {
	var created models.Expense
	expense.ID = ""
	path := "/groups/" + url.PathEscape(groupID) + "/expenses"
	if err := c.do(ctx, http.MethodPost, path, expense, &created); err != nil {
		return models.Expense{}, err
	}
	return created, nil
}

// UpdateExpense replaces an expense and returns the stored version.
func (c *Client) UpdateExpense(ctx context.Context, groupID string, expense models.Expense) (models.Expense, error) {
	var updated models.Expense
	path := "/groups/" + url.PathEscape(groupID) + "/expenses/" + url.PathEscape(expense.ID)
	if err := c.do(ctx, http.MethodPut, path, expense, &updated); err != nil {
		return models.Expense{}, err
	}
	return updated, nil
}

// DeleteExpense removes an expense.
func (c *Client) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/expenses/" + url.PathEscape(expenseID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do issues one request/response cycle: encode, attach the bearer
// credential, classify failures, decode.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (err error) {
	if c.metrics != nil {
		start := time.Now()
		defer func() {
			c.metrics.ObserveRemote(method, time.Since(start), err)
		}()
	}

	var body *bytes.Reader
	if in != nil {
		data, merr := json.Marshal(in)
		if merr != nil {
			return fmt.Errorf("encode request: %w", merr)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
	}
	return nil
}
