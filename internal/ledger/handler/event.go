package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/h2trust/hydroledger/internal/eventlog"
	"go.uber.org/zap"
)

// EventHandler exposes read-only endpoints for the credit event log.
type EventHandler struct {
	log    eventlog.Log
	logger *zap.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(log eventlog.Log, logger *zap.Logger) *EventHandler {
	return &EventHandler{log: log, logger: logger}
}

// Register mounts the event log routes on the given router group. All routes
// are public: the log is the auditable face of the ledger.
func (h *EventHandler) Register(rg *gin.RouterGroup) {
	e := rg.Group("/events")
	{
		e.GET("", h.Overview)
		e.GET("/verify", h.Verify)
		e.GET("/:idx", h.GetEntry)
		e.GET("/tx/:hash", h.GetByHash)
	}
}

// Overview handles GET /events. Returns the chain length and current root hash.
func (h *EventHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.log.Len(ctx)
	if err != nil {
		h.logger.Error("event log Len", zap.Error(err))
		respondError(c, h.logger, err)
		return
	}

	root, err := h.log.Root(ctx)
	if err != nil {
		h.logger.Error("event log Root", zap.Error(err))
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "", gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /events/verify. Walks the full chain and reports integrity.
func (h *EventHandler) Verify(c *gin.Context) {
	if err := h.log.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("event log integrity check failed", zap.Error(err))
		respondOK(c, http.StatusOK, "", gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	respondOK(c, http.StatusOK, "", gin.H{"valid": true})
}

// GetEntry handles GET /events/:idx. Returns a single log entry.
func (h *EventHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "idx must be a non-negative integer",
		})
		return
	}

	entry, err := h.log.Get(c.Request.Context(), idx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", entry)
}

// GetByHash handles GET /events/tx/:hash. Resolves an event by its content
// fingerprint.
func (h *EventHandler) GetByHash(c *gin.Context) {
	entry, err := h.log.GetByTransactionHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", entry)
}
