package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/identity"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/ledger/service"
	"go.uber.org/zap"
)

// TransactionHandler exposes the bookkeeping trail over HTTP.
type TransactionHandler struct {
	txns   *service.TransactionService
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(txns *service.TransactionService, tokens *identity.TokenIssuer, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{txns: txns, tokens: tokens, logger: logger}
}

// Register mounts the transaction routes on the given router group.
func (h *TransactionHandler) Register(rg *gin.RouterGroup) {
	t := rg.Group("/transactions", identity.RequireSession(h.tokens))
	{
		t.GET("", h.List)
		t.GET("/stats", identity.RequireCapability(model.CapViewAllTransactions), h.Stats)
		t.GET("/:id", h.Get)
		t.POST("/purchase", identity.RequireCapability(model.CapPurchaseCredit), h.CreatePurchase)
		t.POST("/transfer", identity.RequireCapability(model.CapTransferCredit), h.CreateTransfer)
		t.POST("/verification", identity.RequireCapability(model.CapVerifyBatch), h.CreateVerification)
		t.PATCH("/:id/status", identity.RequireCapability(model.CapUpdateTransaction), h.UpdateStatus)
	}
}

// CreatePurchase handles POST /transactions/purchase.
func (h *TransactionHandler) CreatePurchase(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	var req service.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	txn, err := h.txns.CreatePurchase(c.Request.Context(), actorID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, "purchase recorded", txn)
}

// CreateTransfer handles POST /transactions/transfer.
func (h *TransactionHandler) CreateTransfer(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	var req service.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	txn, err := h.txns.CreateTransfer(c.Request.Context(), actorID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, "transfer recorded", txn)
}

// CreateVerification handles POST /transactions/verification. Records a
// completed batch verification performed by the calling certifier.
func (h *TransactionHandler) CreateVerification(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	var req struct {
		BatchID     uuid.UUID `json:"batch_id" binding:"required"`
		Amount      float64   `json:"amount"`
		Description string    `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	txn, err := h.txns.CreateVerificationRecord(c.Request.Context(), actorID, req.BatchID, req.Amount, req.Description)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, "verification recorded", txn)
}

// List handles GET /transactions. Query params: type, status, from, to
// (RFC 3339 dates), limit, offset.
func (h *TransactionHandler) List(c *gin.Context) {
	actorID, role, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	f := model.TransactionFilter{
		Type:   model.TransactionType(c.Query("type")),
		Status: model.TransactionStatus(c.Query("status")),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	var err error
	if f.FromDate, err = dateQuery(c, "from"); err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("from must be an RFC 3339 timestamp"))
		return
	}
	if f.ToDate, err = dateQuery(c, "to"); err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("to must be an RFC 3339 timestamp"))
		return
	}

	txns, err := h.txns.List(c.Request.Context(), actorID, role, f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", txns)
}

// Get handles GET /transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	actorID, role, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	txnID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid transaction id"))
		return
	}

	txn, err := h.txns.Get(c.Request.Context(), actorID, role, txnID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", txn)
}

// UpdateStatus handles PATCH /transactions/:id/status.
func (h *TransactionHandler) UpdateStatus(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	txnID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid transaction id"))
		return
	}

	var req struct {
		Status  string `json:"status" binding:"required"`
		Details string `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	txn, err := h.txns.UpdateStatus(c.Request.Context(), actorID, txnID, model.TransactionStatus(req.Status), req.Details)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "transaction status updated", txn)
}

// Stats handles GET /transactions/stats. Query params: from, to.
func (h *TransactionHandler) Stats(c *gin.Context) {
	from, err := dateQuery(c, "from")
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("from must be an RFC 3339 timestamp"))
		return
	}
	to, err := dateQuery(c, "to")
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("to must be an RFC 3339 timestamp"))
		return
	}

	stats, err := h.txns.Statistics(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", stats)
}

func dateQuery(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
