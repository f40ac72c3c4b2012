// Package handler exposes the ledger over HTTP. Handlers bind and validate
// request shapes, delegate every rule to the service layer, and translate
// domain error kinds into response codes. All responses share one envelope:
// {"success": bool, "message": string, "data": ...} on success and
// {"success": false, "message": string} on failure.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"go.uber.org/zap"
)

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": "invalid request payload",
		"errors":  []string{err.Error()},
	})
}

// respondError maps a domain error kind onto its HTTP status. Unkinded errors
// are infrastructure failures and come back as 500 with a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch model.KindOf(err) {
	case model.KindNotFound:
		status, message = http.StatusNotFound, err.Error()
	case model.KindInvalidInput, model.KindInvalidRecipient:
		status, message = http.StatusBadRequest, err.Error()
	case model.KindForbidden:
		status, message = http.StatusForbidden, err.Error()
	case model.KindInvalidState, model.KindDuplicateKey:
		status, message = http.StatusConflict, err.Error()
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
