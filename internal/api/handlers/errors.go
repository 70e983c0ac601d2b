package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/fleetops/services/payroll/internal/ledger"
)

// respondError maps service errors onto HTTP statuses: missing resources to
// 404, state-machine violations to 409, bad input to 400, anything else 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsInvalidState(err):
		status = http.StatusConflict
	case ledger.IsValidation(err):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
