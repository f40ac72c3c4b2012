package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/identity"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/ledger/service"
	"go.uber.org/zap"
)

// BatchHandler exposes the production batch lifecycle over HTTP.
type BatchHandler struct {
	batches *service.BatchService
	txns    *service.TransactionService
	tokens  *identity.TokenIssuer
	logger  *zap.Logger
}

// NewBatchHandler creates a BatchHandler.
func NewBatchHandler(batches *service.BatchService, txns *service.TransactionService, tokens *identity.TokenIssuer, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{batches: batches, txns: txns, tokens: tokens, logger: logger}
}

// Register mounts the batch routes on the given router group.
func (h *BatchHandler) Register(rg *gin.RouterGroup) {
	b := rg.Group("/batches", identity.RequireSession(h.tokens))
	{
		b.POST("", identity.RequireCapability(model.CapSubmitBatch), h.Submit)
		b.GET("", h.List)
		b.GET("/:id", h.Get)
		b.POST("/:id/verify", identity.RequireCapability(model.CapVerifyBatch), h.Verify)
		b.POST("/:id/approve", identity.RequireCapability(model.CapApproveBatch), h.Approve)
		b.POST("/:id/reject", identity.RequireCapability(model.CapRejectBatch), h.Reject)
	}
}

// Submit handles POST /batches.
func (h *BatchHandler) Submit(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	var req model.SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	batch, err := h.batches.Submit(c.Request.Context(), actorID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, "batch submitted for verification", batch)
}

// List handles GET /batches. Query params: status (comma-separated), region,
// limit, offset.
func (h *BatchHandler) List(c *gin.Context) {
	actorID, role, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	f := model.BatchFilter{
		Region: c.Query("region"),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	for _, s := range splitCSV(c.Query("status")) {
		f.Statuses = append(f.Statuses, model.BatchStatus(s))
	}

	batches, err := h.batches.List(c.Request.Context(), actorID, role, f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", batches)
}

// Get handles GET /batches/:id.
func (h *BatchHandler) Get(c *gin.Context) {
	actorID, role, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid batch id"))
		return
	}

	batch, err := h.batches.Get(c.Request.Context(), actorID, role, batchID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", batch)
}

// Verify handles POST /batches/:id/verify. It runs the assessment without
// changing batch state. Certifiers call this before deciding.
func (h *BatchHandler) Verify(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid batch id"))
		return
	}

	result, err := h.batches.Verify(c.Request.Context(), actorID, batchID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "verification complete", result)
}

// Approve handles POST /batches/:id/approve.
func (h *BatchHandler) Approve(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid batch id"))
		return
	}

	var req model.ApproveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	batch, err := h.batches.Approve(c.Request.Context(), actorID, batchID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Best-effort bookkeeping record; the approval itself already committed.
	if _, err := h.txns.CreateVerificationRecord(c.Request.Context(), actorID, batchID,
		0, "verification of batch "+batch.BatchNumber); err != nil {
		h.logger.Warn("record verification transaction",
			zap.String("batch_id", batchID.String()),
			zap.Error(err),
		)
	}

	respondOK(c, http.StatusOK, "batch approved", batch)
}

// Reject handles POST /batches/:id/reject.
func (h *BatchHandler) Reject(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid batch id"))
		return
	}

	var req model.RejectBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	batch, err := h.batches.Reject(c.Request.Context(), actorID, batchID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "batch rejected", batch)
}

// actor extracts the authenticated participant's ID and role from the
// session claims injected by RequireSession.
func actor(c *gin.Context) (uuid.UUID, model.Role, bool) {
	claims := identity.ClaimsFromCtx(c)
	if claims == nil {
		return uuid.Nil, "", false
	}
	id, err := claims.SubjectID()
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, claims.ParticipantRole(), true
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
