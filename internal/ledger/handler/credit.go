package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/email"
	"github.com/h2trust/hydroledger/internal/eventlog"
	"github.com/h2trust/hydroledger/internal/identity"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/ledger/service"
	"go.uber.org/zap"
)

// CreditHandler exposes credit minting, transfer, and retirement over HTTP.
type CreditHandler struct {
	credits *service.CreditService
	txns    *service.TransactionService
	tokens  *identity.TokenIssuer
	mailer  email.Sender
	logger  *zap.Logger
}

// NewCreditHandler creates a CreditHandler.
func NewCreditHandler(credits *service.CreditService, txns *service.TransactionService, tokens *identity.TokenIssuer, mailer email.Sender, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{credits: credits, txns: txns, tokens: tokens, mailer: mailer, logger: logger}
}

// Register mounts the credit routes on the given router group. The
// certificate endpoint is public; everything else requires a session.
func (h *CreditHandler) Register(rg *gin.RouterGroup) {
	cr := rg.Group("/credits")
	{
		cr.GET("/:id/certificate/:receiptId", h.Certificate)

		authed := cr.Group("", identity.RequireSession(h.tokens))
		{
			authed.GET("", h.List)
			authed.GET("/my", h.ListMine)
			authed.GET("/:id", h.Get)
			authed.GET("/:id/history", h.History)
			authed.POST("/mint/:batchId", identity.RequireCapability(model.CapMintCredit), h.Mint)
			authed.POST("/:id/transfer", identity.RequireCapability(model.CapTransferCredit), h.Transfer)
			authed.POST("/:id/retire", identity.RequireCapability(model.CapRetireCredit), h.Retire)
		}
	}
}

// Mint handles POST /credits/mint/:batchId.
func (h *CreditHandler) Mint(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid batch id"))
		return
	}

	// The body is optional; an empty request mints the full verified supply.
	var req model.MintCreditRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	credit, err := h.credits.Mint(c.Request.Context(), actorID, batchID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordEventAppend(string(eventlog.EventMint))
	respondOK(c, http.StatusCreated, "credit minted", credit)
}

// List handles GET /credits. Query params: status (comma-separated), limit,
// offset.
func (h *CreditHandler) List(c *gin.Context) {
	actorID, role, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	f := model.CreditFilter{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	for _, s := range splitCSV(c.Query("status")) {
		f.Statuses = append(f.Statuses, model.CreditStatus(s))
	}

	credits, err := h.credits.List(c.Request.Context(), actorID, role, f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", credits)
}

// ListMine handles GET /credits/my. Returns the caller's holdings in any
// status. Query params: status (comma-separated), limit, offset.
func (h *CreditHandler) ListMine(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}

	f := model.CreditFilter{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	for _, s := range splitCSV(c.Query("status")) {
		f.Statuses = append(f.Statuses, model.CreditStatus(s))
	}

	credits, err := h.credits.ListOwned(c.Request.Context(), actorID, f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", credits)
}

// Get handles GET /credits/:id.
func (h *CreditHandler) Get(c *gin.Context) {
	actorID, role, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid credit id"))
		return
	}

	credit, err := h.credits.Get(c.Request.Context(), actorID, role, creditID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", credit)
}

// History handles GET /credits/:id/history, the provenance event trail.
func (h *CreditHandler) History(c *gin.Context) {
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid credit id"))
		return
	}

	events, err := h.credits.History(c.Request.Context(), creditID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", events)
}

// Transfer handles POST /credits/:id/transfer.
func (h *CreditHandler) Transfer(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid credit id"))
		return
	}

	var req model.TransferCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	credit, err := h.credits.Transfer(c.Request.Context(), actorID, creditID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordEventAppend(string(eventlog.EventTransfer))
	respondOK(c, http.StatusOK, "credit transferred", credit)
}

// Retire handles POST /credits/:id/retire.
func (h *CreditHandler) Retire(c *gin.Context) {
	actorID, _, ok := actor(c)
	if !ok {
		respondError(c, h.logger, model.ErrForbidden("authentication required"))
		return
	}
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid credit id"))
		return
	}

	var req model.RetireCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	credit, err := h.credits.Retire(c.Request.Context(), actorID, creditID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordEventAppend(string(eventlog.EventRetire))

	// Best-effort bookkeeping record; the retirement itself already committed.
	if credit.Retirement != nil {
		if _, err := h.txns.CreateRetirementRecord(c.Request.Context(), actorID, creditID,
			credit.Retirement.AmountRetired, "retirement of credit "+credit.CreditID); err != nil {
			h.logger.Warn("record retirement transaction",
				zap.String("credit_id", credit.CreditID),
				zap.Error(err),
			)
		}

		if claims := identity.ClaimsFromCtx(c); claims != nil {
			subject, body := email.RetirementMessage(claims.Name, credit)
			if err := h.mailer.Send(c.Request.Context(), claims.Email, subject, body); err != nil {
				h.logger.Warn("send retirement email",
					zap.String("credit_id", credit.CreditID),
					zap.Error(err),
				)
			}
		}
	}

	respondOK(c, http.StatusOK, "credit retired", credit)
}

// Certificate handles GET /credits/:id/certificate/:receiptId, the public
// retirement certificate.
func (h *CreditHandler) Certificate(c *gin.Context) {
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, model.ErrInvalidInput("invalid credit id"))
		return
	}

	cert, err := h.credits.Certificate(c.Request.Context(), creditID, c.Param("receiptId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", cert)
}
