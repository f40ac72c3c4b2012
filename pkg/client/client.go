// Package client provides the Go SDK for the hydrogen credit ledger API.
// All calls unwrap the service's response envelope and return typed results.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// APIError is a non-2xx response from the ledger service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// envelope is the service's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client is the ledger SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches a pre-obtained session token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client connected to baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetToken replaces the session token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.bearerToken = token
	c.mu.Unlock()
}

// ── Auth ─────────────────────────────────────────────────────────────────────

// Session is the result of a successful register or login call.
type Session struct {
	User  json.RawMessage `json:"user"`
	Token string          `json:"token"`
}

// RegisterRequest is the payload for Register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Company  string `json:"company,omitempty"`
	Region   string `json:"region,omitempty"`
	Role     string `json:"role"`
}

// Register creates an account and stores the returned session token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Login authenticates and stores the returned session token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// ── Batches ──────────────────────────────────────────────────────────────────

// Batch is the API view of a production batch.
type Batch struct {
	ID               string          `json:"id"`
	ProducerID       string          `json:"producer_id"`
	BatchNumber      string          `json:"batch_number"`
	KgProduced       float64         `json:"kg_produced"`
	KwhUsed          float64         `json:"kwh_used"`
	Region           string          `json:"region"`
	ProductionDate   time.Time       `json:"production_date"`
	Status           string          `json:"status"`
	EvidenceHash     string          `json:"evidence_hash"`
	Verification     json.RawMessage `json:"verification_result,omitempty"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	CertificateFiles []string        `json:"certificate_files"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SubmitBatchRequest is the payload for SubmitBatch.
type SubmitBatchRequest struct {
	BatchNumber      string    `json:"batch_number"`
	KgProduced       float64   `json:"kg_produced"`
	KwhUsed          float64   `json:"kwh_used"`
	Region           string    `json:"region"`
	ProductionDate   time.Time `json:"production_date"`
	CertificateFiles []string  `json:"certificate_files"`
	Notes            string    `json:"notes,omitempty"`
}

// SubmitBatch reports a new production batch.
func (c *Client) SubmitBatch(ctx context.Context, req SubmitBatchRequest) (*Batch, error) {
	var out Batch
	if err := c.do(ctx, http.MethodPost, "/api/v1/batches", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBatches lists batches visible to the caller.
func (c *Client) ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out []Batch
	if err := c.do(ctx, http.MethodGet, withQuery("/api/v1/batches", q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBatch fetches one batch by ID.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	var out Batch
	if err := c.do(ctx, http.MethodGet, "/api/v1/batches/"+batchID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyBatch runs the certifier assessment without changing batch state.
func (c *Client) VerifyBatch(ctx context.Context, batchID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/v1/batches/"+batchID+"/verify", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveBatch approves a pending batch with a verification result payload.
func (c *Client) ApproveBatch(ctx context.Context, batchID string, verification any, notes string) (*Batch, error) {
	body := map[string]any{"verification_result": verification}
	if notes != "" {
		body["notes"] = notes
	}
	var out Batch
	if err := c.do(ctx, http.MethodPost, "/api/v1/batches/"+batchID+"/approve", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectBatch rejects a pending batch with a reason.
func (c *Client) RejectBatch(ctx context.Context, batchID, reason string) (*Batch, error) {
	body := map[string]string{"rejection_reason": reason}
	var out Batch
	if err := c.do(ctx, http.MethodPost, "/api/v1/batches/"+batchID+"/reject", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Credits ──────────────────────────────────────────────────────────────────

// Credit is the API view of a credit.
type Credit struct {
	ID         string          `json:"id"`
	CreditID   string          `json:"credit_id"`
	BatchID    string          `json:"batch_id"`
	Supply     float64         `json:"supply"`
	OwnerID    string          `json:"owner_id"`
	Status     string          `json:"status"`
	Retirement json.RawMessage `json:"retirement_receipt,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MintCredit mints a credit from an approved batch.
func (c *Client) MintCredit(ctx context.Context, batchID string) (*Credit, error) {
	var out Credit
	if err := c.do(ctx, http.MethodPost, "/api/v1/credits/mint/"+batchID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCredits lists credits visible to the caller.
func (c *Client) ListCredits(ctx context.Context, status string, limit, offset int) ([]Credit, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out []Credit
	if err := c.do(ctx, http.MethodGet, withQuery("/api/v1/credits", q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MyCredits lists the caller's own holdings in any status.
func (c *Client) MyCredits(ctx context.Context, status string, limit, offset int) ([]Credit, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out []Credit
	if err := c.do(ctx, http.MethodGet, withQuery("/api/v1/credits/my", q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCredit fetches one credit by ID.
func (c *Client) GetCredit(ctx context.Context, creditID string) (*Credit, error) {
	var out Credit
	if err := c.do(ctx, http.MethodGet, "/api/v1/credits/"+creditID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransferCredit moves supply to another participant.
func (c *Client) TransferCredit(ctx context.Context, creditID, toUserID string, amount float64) (*Credit, error) {
	body := map[string]any{"to_user_id": toUserID, "amount": amount}
	var out Credit
	if err := c.do(ctx, http.MethodPost, "/api/v1/credits/"+creditID+"/transfer", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetireCredit permanently removes supply. Amount zero retires everything.
func (c *Client) RetireCredit(ctx context.Context, creditID, reason string, amount float64) (*Credit, error) {
	body := map[string]any{"retirement_reason": reason}
	if amount > 0 {
		body["amount"] = amount
	}
	var out Credit
	if err := c.do(ctx, http.MethodPost, "/api/v1/credits/"+creditID+"/retire", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreditHistory returns the provenance events for one credit.
func (c *Client) CreditHistory(ctx context.Context, creditID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/credits/"+creditID+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RetirementCertificate fetches the public certificate for a receipt.
func (c *Client) RetirementCertificate(ctx context.Context, creditID, receiptID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/credits/"+creditID+"/certificate/"+receiptID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Event log ────────────────────────────────────────────────────────────────

// LogOverview is the chain length and current root hash.
type LogOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// EventLogOverview fetches the event log length and root.
func (c *Client) EventLogOverview(ctx context.Context) (*LogOverview, error) {
	var out LogOverview
	if err := c.do(ctx, http.MethodGet, "/api/v1/events", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogIntegrity is the result of a full-chain verification.
type LogIntegrity struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// VerifyEventLog walks the full chain server-side and reports integrity.
func (c *Client) VerifyEventLog(ctx context.Context) (*LogIntegrity, error) {
	var out LogIntegrity
	if err := c.do(ctx, http.MethodGet, "/api/v1/events/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Transport ────────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
