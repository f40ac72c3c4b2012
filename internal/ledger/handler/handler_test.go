package handler_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/h2trust/hydroledger/internal/email"
	"github.com/h2trust/hydroledger/internal/identity"
	"github.com/h2trust/hydroledger/internal/ledger/handler"
	"github.com/h2trust/hydroledger/internal/ledger/service"
	"github.com/h2trust/hydroledger/internal/ledger/store"
	"github.com/h2trust/hydroledger/internal/users"
	"github.com/h2trust/hydroledger/internal/verification"
	"go.uber.org/zap"
)

// envelope is the shared response shape of every API route.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	store  *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens := identity.NewTokenIssuer(key, "https://ledger.test", time.Hour)

	logger := zap.NewNop()
	st := store.NewMemory()
	userSvc := users.NewService(users.NewMemoryRepository(), logger)
	batchSvc := service.NewBatchService(st, verification.NewDeterministic(0, 0), logger)
	creditSvc := service.NewCreditService(st, userSvc, logger)
	txnSvc := service.NewTransactionService(st, userSvc, logger)

	mailer := email.NewNoopSender(logger)
	router := gin.New()
	router.GET("/metrics", handler.MetricsHandler())
	api := router.Group("/api/v1")
	handler.NewAuthHandler(userSvc, tokens, mailer, logger).Register(api)
	handler.NewBatchHandler(batchSvc, txnSvc, tokens, logger).Register(api)
	handler.NewCreditHandler(creditSvc, txnSvc, tokens, mailer, logger).Register(api)
	handler.NewEventHandler(st.Events(), logger).Register(api)
	handler.NewTransactionHandler(txnSvc, tokens, logger).Register(api)

	return &testEnv{t: t, router: router, store: st}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", w.Body.String(), err)
	}
	return env
}

func dataInto(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	env := decode(t, w)
	if !env.Success {
		t.Fatalf("response not successful: %s", env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

// register creates an account over HTTP and returns its user ID and token.
func (e *testEnv) register(email, role string) (string, string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/auth/register", "", map[string]any{
		"email":    email,
		"password": "hydrogen-test",
		"name":     "Test " + role,
		"role":     role,
	})
	if w.Code != http.StatusCreated {
		e.t.Fatalf("register %s: status %d, body %s", email, w.Code, w.Body.String())
	}
	var data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}
	dataInto(e.t, w, &data)
	return data.User.ID, data.Token
}

func (e *testEnv) submitBatch(token, number string, kg float64) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/batches", token, map[string]any{
		"batch_number":      number,
		"kg_produced":       kg,
		"kwh_used":          kg * 45,
		"region":            "DE-North",
		"production_date":   time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
		"certificate_files": []string{"certs/a.pdf"},
	})
	if w.Code != http.StatusCreated {
		e.t.Fatalf("submit batch: status %d, body %s", w.Code, w.Body.String())
	}
	var batch struct {
		ID string `json:"id"`
	}
	dataInto(e.t, w, &batch)
	return batch.ID
}

// mintCredit walks a batch through verification and approval, then mints it,
// returning the credit ID.
func (e *testEnv) mintCredit(producerTok, certifierTok, number string, kg float64) string {
	e.t.Helper()
	batchID := e.submitBatch(producerTok, number, kg)

	w := e.do(http.MethodPost, "/batches/"+batchID+"/verify", certifierTok, nil)
	if w.Code != http.StatusOK {
		e.t.Fatalf("verify: status %d, body %s", w.Code, w.Body.String())
	}
	var result json.RawMessage
	dataInto(e.t, w, &result)

	w = e.do(http.MethodPost, "/batches/"+batchID+"/approve", certifierTok, map[string]any{
		"verification_result": result,
	})
	if w.Code != http.StatusOK {
		e.t.Fatalf("approve: status %d, body %s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodPost, "/credits/mint/"+batchID, certifierTok, nil)
	if w.Code != http.StatusCreated {
		e.t.Fatalf("mint: status %d, body %s", w.Code, w.Body.String())
	}
	var credit struct {
		ID string `json:"id"`
	}
	dataInto(e.t, w, &credit)
	return credit.ID
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register("alice@example.com", "producer")

	t.Run("me returns the account", func(t *testing.T) {
		w := env.do(http.MethodGet, "/auth/me", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status %d: %s", w.Code, w.Body.String())
		}
		var u struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		}
		dataInto(t, w, &u)
		if u.Email != "alice@example.com" || u.Role != "producer" {
			t.Errorf("me: %+v", u)
		}
	})

	t.Run("wrong password is a uniform 401", func(t *testing.T) {
		w := env.do(http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "alice@example.com",
			"password": "wrong",
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status %d", w.Code)
		}
		if decode(t, w).Message != "invalid credentials" {
			t.Errorf("message: %q", decode(t, w).Message)
		}
	})

	t.Run("login returns a working token", func(t *testing.T) {
		w := env.do(http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "alice@example.com",
			"password": "hydrogen-test",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status %d: %s", w.Code, w.Body.String())
		}
		var data struct {
			Token string `json:"token"`
		}
		dataInto(t, w, &data)
		if w := env.do(http.MethodGet, "/auth/me", data.Token, nil); w.Code != http.StatusOK {
			t.Errorf("me with login token: status %d", w.Code)
		}
	})

	t.Run("missing token is 401", func(t *testing.T) {
		if w := env.do(http.MethodGet, "/auth/me", "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("status %d", w.Code)
		}
	})
}

func TestFullCreditLifecycle(t *testing.T) {
	env := newTestEnv(t)
	producerID, producerTok := env.register("producer@example.com", "producer")
	_, certifierTok := env.register("certifier@example.com", "certifier")
	buyerID, buyerTok := env.register("buyer@example.com", "buyer")

	batchID := env.submitBatch(producerTok, "BATCH-HTTP-1", 1500)

	// Certifier dry-runs the assessment, then approves with it.
	w := env.do(http.MethodPost, "/batches/"+batchID+"/verify", certifierTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: status %d, body %s", w.Code, w.Body.String())
	}
	var result json.RawMessage
	dataInto(t, w, &result)

	w = env.do(http.MethodPost, "/batches/"+batchID+"/approve", certifierTok, map[string]any{
		"verification_result": result,
		"notes":               "assessment clean",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status %d, body %s", w.Code, w.Body.String())
	}

	// Mint issues the credit to the producer.
	w = env.do(http.MethodPost, "/credits/mint/"+batchID, certifierTok, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("mint: status %d, body %s", w.Code, w.Body.String())
	}
	var credit struct {
		ID      string  `json:"id"`
		Supply  float64 `json:"supply"`
		OwnerID string  `json:"owner_id"`
		Status  string  `json:"status"`
	}
	dataInto(t, w, &credit)
	if credit.Supply != 1500 || credit.OwnerID != producerID || credit.Status != "active" {
		t.Fatalf("minted credit: %+v", credit)
	}

	// Producer sells to the buyer; ownership moves, supply stays.
	w = env.do(http.MethodPost, "/credits/"+credit.ID+"/transfer", producerTok, map[string]any{
		"to_user_id": buyerID,
		"amount":     500,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("transfer: status %d, body %s", w.Code, w.Body.String())
	}
	dataInto(t, w, &credit)
	if credit.OwnerID != buyerID || credit.Supply != 1500 {
		t.Fatalf("credit after transfer: %+v", credit)
	}

	// Buyer retires part of the supply; retirement is terminal.
	w = env.do(http.MethodPost, "/credits/"+credit.ID+"/retire", buyerTok, map[string]any{
		"retirement_reason": "offsetting Q1 emissions",
		"amount":            200,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("retire: status %d, body %s", w.Code, w.Body.String())
	}
	var retired struct {
		Supply     float64 `json:"supply"`
		Status     string  `json:"status"`
		Retirement struct {
			ReceiptID    string  `json:"receipt_id"`
			CarbonOffset float64 `json:"carbon_offset"`
		} `json:"retirement_receipt"`
	}
	dataInto(t, w, &retired)
	if retired.Supply != 1300 || retired.Status != "retired" {
		t.Fatalf("credit after retire: %+v", retired)
	}
	if retired.Retirement.CarbonOffset != 100 {
		t.Errorf("carbon offset: got %v, want 100", retired.Retirement.CarbonOffset)
	}

	// Certificate is public, no token required.
	w = env.do(http.MethodGet, "/credits/"+credit.ID+"/certificate/"+retired.Retirement.ReceiptID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("certificate: status %d, body %s", w.Code, w.Body.String())
	}
	var cert struct {
		Issuer   string `json:"issuer"`
		Validity string `json:"validity"`
	}
	dataInto(t, w, &cert)
	if cert.Issuer != "Green Hydrogen Credit Registry" || cert.Validity != "permanent" {
		t.Errorf("certificate: %+v", cert)
	}

	// History shows the full provenance and the chain verifies end to end.
	w = env.do(http.MethodGet, "/credits/"+credit.ID+"/history", buyerTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status %d, body %s", w.Code, w.Body.String())
	}
	var events []struct {
		EventType string `json:"event_type"`
	}
	dataInto(t, w, &events)
	if len(events) != 3 || events[0].EventType != "MINT" || events[1].EventType != "TRANSFER" || events[2].EventType != "RETIRE" {
		t.Errorf("history: %+v", events)
	}

	w = env.do(http.MethodGet, "/events/verify", "", nil)
	var verify struct {
		Valid bool `json:"valid"`
	}
	dataInto(t, w, &verify)
	if !verify.Valid {
		t.Error("event chain reported invalid")
	}

	// The approval also left a bookkeeping record visible to the certifier.
	w = env.do(http.MethodGet, "/transactions", certifierTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transactions: status %d, body %s", w.Code, w.Body.String())
	}
	var txns []struct {
		Type string `json:"type"`
	}
	dataInto(t, w, &txns)
	found := false
	for _, txn := range txns {
		if txn.Type == "BATCH_VERIFICATION" {
			found = true
		}
	}
	if !found {
		t.Errorf("no BATCH_VERIFICATION record in %+v", txns)
	}
}

func TestCapabilityGating(t *testing.T) {
	env := newTestEnv(t)
	_, producerTok := env.register("p@example.com", "producer")
	_, certifierTok := env.register("c@example.com", "certifier")
	_, buyerTok := env.register("b@example.com", "buyer")

	batchID := env.submitBatch(producerTok, "BATCH-GATE", 800)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
	}{
		{"producer cannot approve", http.MethodPost, "/batches/" + batchID + "/approve", producerTok, map[string]any{"verification_result": map[string]any{"trust_score": 90}}},
		{"producer cannot reject", http.MethodPost, "/batches/" + batchID + "/reject", producerTok, map[string]any{"rejection_reason": "no"}},
		{"buyer cannot submit", http.MethodPost, "/batches", buyerTok, map[string]any{"batch_number": "X"}},
		{"producer cannot mint", http.MethodPost, "/credits/mint/" + batchID, producerTok, nil},
		{"certifier cannot retire", http.MethodPost, "/credits/" + batchID + "/retire", certifierTok, map[string]any{"retirement_reason": "r"}},
		{"buyer cannot update transactions", http.MethodPatch, "/transactions/" + batchID + "/status", buyerTok, map[string]any{"status": "COMPLETED"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(tc.method, tc.path, tc.token, tc.body)
			if w.Code != http.StatusForbidden {
				t.Errorf("status %d, body %s", w.Code, w.Body.String())
			}
			if decode(t, w).Success {
				t.Error("forbidden response claims success")
			}
		})
	}

	t.Run("unauthenticated mutation is 401", func(t *testing.T) {
		if w := env.do(http.MethodPost, "/batches", "", map[string]any{}); w.Code != http.StatusUnauthorized {
			t.Errorf("status %d", w.Code)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	_, producerTok := env.register("p2@example.com", "producer")
	_, certifierTok := env.register("c2@example.com", "certifier")

	batchID := env.submitBatch(producerTok, "BATCH-ERR", 700)

	t.Run("duplicate batch number is 409", func(t *testing.T) {
		w := env.do(http.MethodPost, "/batches", producerTok, map[string]any{
			"batch_number":      "BATCH-ERR",
			"kg_produced":       900,
			"kwh_used":          40500,
			"region":            "DE-North",
			"production_date":   time.Now().UTC().Format(time.RFC3339),
			"certificate_files": []string{"certs/b.pdf"},
		})
		if w.Code != http.StatusConflict {
			t.Errorf("status %d, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown batch is 404", func(t *testing.T) {
		w := env.do(http.MethodGet, "/batches/00000000-0000-0000-0000-000000000001", certifierTok, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status %d", w.Code)
		}
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		w := env.do(http.MethodGet, "/batches/not-a-uuid", certifierTok, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status %d", w.Code)
		}
	})

	t.Run("bind failure is 400 with errors list", func(t *testing.T) {
		w := env.do(http.MethodPost, "/batches/"+batchID+"/reject", certifierTok, map[string]any{})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status %d, body %s", w.Code, w.Body.String())
		}
		if resp := decode(t, w); resp.Success || len(resp.Errors) == 0 {
			t.Errorf("bind error envelope: %+v", resp)
		}
	})

	t.Run("mint before approval is 409", func(t *testing.T) {
		w := env.do(http.MethodPost, "/credits/mint/"+batchID, certifierTok, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("status %d, body %s", w.Code, w.Body.String())
		}
	})
}

func TestEventEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/events", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("overview: status %d", w.Code)
	}
	var overview struct {
		Entries int    `json:"entries"`
		Root    string `json:"root"`
	}
	dataInto(t, w, &overview)
	if overview.Entries != 1 {
		t.Errorf("fresh chain entries: got %d, want 1 (genesis)", overview.Entries)
	}

	w = env.do(http.MethodGet, "/events/0", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("genesis entry: status %d", w.Code)
	}
	var genesis struct {
		EventType string `json:"event_type"`
		Hash      string `json:"hash"`
	}
	dataInto(t, w, &genesis)
	if genesis.EventType != "GENESIS" || genesis.Hash != overview.Root {
		t.Errorf("genesis entry: %+v, root %q", genesis, overview.Root)
	}

	if w := env.do(http.MethodGet, "/events/99", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("out-of-range entry: status %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/events/-1", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("negative index: status %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/events/tx/deadbeef", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown tx hash: status %d", w.Code)
	}
}

func TestTransactionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, buyerTok := env.register("buyer3@example.com", "buyer")
	sellerID, sellerTok := env.register("seller3@example.com", "producer")
	_, certifierTok := env.register("certifier3@example.com", "certifier")
	_, auditorTok := env.register("auditor3@example.com", "auditor")

	creditID := env.mintCredit(sellerTok, certifierTok, "BATCH-TXN-1", 100)

	w := env.do(http.MethodPost, "/transactions/purchase", buyerTok, map[string]any{
		"credit_id":      creditID,
		"amount":         250,
		"payment_method": "BANK_TRANSFER",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("purchase: status %d, body %s", w.Code, w.Body.String())
	}
	var txn struct {
		ID           string  `json:"id"`
		Status       string  `json:"status"`
		ToUser       string  `json:"to_user"`
		CreditAmount float64 `json:"credit_amount"`
	}
	dataInto(t, w, &txn)
	if txn.Status != "PENDING" {
		t.Errorf("status: %q", txn.Status)
	}
	if txn.ToUser != sellerID || txn.CreditAmount != 100 {
		t.Errorf("seller/amount not derived from the credit: %+v", txn)
	}

	// Purchases against credits that do not exist are rejected.
	w = env.do(http.MethodPost, "/transactions/purchase", buyerTok, map[string]any{
		"credit_id":      "00000000-0000-0000-0000-000000000009",
		"amount":         250,
		"payment_method": "BANK_TRANSFER",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("purchase of unknown credit: status %d, body %s", w.Code, w.Body.String())
	}

	// Auditor moves it through the bookkeeping lifecycle.
	w = env.do(http.MethodPatch, "/transactions/"+txn.ID+"/status", auditorTok, map[string]any{
		"status":  "COMPLETED",
		"details": "settled out of band",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status: status %d, body %s", w.Code, w.Body.String())
	}
	var updated struct {
		Status     string `json:"status"`
		AuditTrail []struct {
			Action string `json:"action"`
		} `json:"audit_trail"`
	}
	dataInto(t, w, &updated)
	if updated.Status != "COMPLETED" || len(updated.AuditTrail) != 2 {
		t.Errorf("updated transaction: %+v", updated)
	}

	// Stats are auditor-visible, buyer-forbidden.
	if w := env.do(http.MethodGet, "/transactions/stats", auditorTok, nil); w.Code != http.StatusOK {
		t.Errorf("stats for auditor: status %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/transactions/stats", buyerTok, nil); w.Code != http.StatusForbidden {
		t.Errorf("stats for buyer: status %d", w.Code)
	}
}

func TestMetrics_countsLifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	_, producerTok := env.register("producer5@example.com", "producer")
	_, certifierTok := env.register("certifier5@example.com", "certifier")
	env.mintCredit(producerTok, certifierTok, "BATCH-MET-1", 100)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `h2_credit_events_total{type="MINT"}`) {
		t.Error("mint not counted in h2_credit_events_total")
	}
}

func TestMarketplaceAndVerificationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, producerTok := env.register("producer4@example.com", "producer")
	_, certifierTok := env.register("certifier4@example.com", "certifier")
	_, buyerTok := env.register("buyer4@example.com", "buyer")

	batchID := env.submitBatch(producerTok, "BATCH-MKT-1", 1000)

	// Certifiers can record a verification; buyers cannot.
	w := env.do(http.MethodPost, "/transactions/verification", certifierTok, map[string]any{
		"batch_id":    batchID,
		"description": "site audit passed",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("record verification: status %d, body %s", w.Code, w.Body.String())
	}
	var txn struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	dataInto(t, w, &txn)
	if txn.Type != "BATCH_VERIFICATION" || txn.Status != "COMPLETED" {
		t.Errorf("verification record: %+v", txn)
	}
	if w := env.do(http.MethodPost, "/transactions/verification", buyerTok, map[string]any{
		"batch_id": batchID,
	}); w.Code != http.StatusForbidden {
		t.Errorf("verification by buyer: status %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/transactions/verification", certifierTok, map[string]any{
		"batch_id": "00000000-0000-0000-0000-000000000008",
	}); w.Code != http.StatusNotFound {
		t.Errorf("verification of unknown batch: status %d", w.Code)
	}

	// The marketplace and holdings listings are distinct reads.
	w = env.do(http.MethodGet, "/credits", buyerTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("marketplace list: status %d, body %s", w.Code, w.Body.String())
	}
	var market []struct {
		Status string `json:"status"`
	}
	dataInto(t, w, &market)
	for _, c := range market {
		if c.Status != "active" {
			t.Errorf("non-active credit in marketplace: %+v", c)
		}
	}

	w = env.do(http.MethodGet, "/credits/my", buyerTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("my credits: status %d, body %s", w.Code, w.Body.String())
	}
	var mine []struct {
		ID string `json:"id"`
	}
	dataInto(t, w, &mine)
	if len(mine) != 0 {
		t.Errorf("buyer holdings: got %d credits, want 0", len(mine))
	}
}
