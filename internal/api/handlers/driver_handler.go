package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"example.com/fleetops/services/payroll/internal/api/middleware"
	"example.com/fleetops/services/payroll/internal/ledger"
	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/settlements"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// DriverHandler handles driver pay configuration HTTP requests
type DriverHandler struct {
	ledgerService     *ledger.Service
	settlementService *settlements.Service
	tracer            tracing.Tracer
}

// NewDriverHandler creates a new driver handler
func NewDriverHandler(ledgerService *ledger.Service, settlementService *settlements.Service, tracer tracing.Tracer) *DriverHandler {
	return &DriverHandler{
		ledgerService:     ledgerService,
		settlementService: settlementService,
		tracer:            tracer,
	}
}

// ChangePayProfileRequest represents a pay-terms change request
type ChangePayProfileRequest struct {
	PayType    string          `json:"pay_type" binding:"required"`
	Rate       decimal.Decimal `json:"rate" binding:"required"`
	DriverKind string          `json:"driver_kind" binding:"required"`
}

// HandleChangePayProfile replaces the driver's active pay profile
func (h *DriverHandler) HandleChangePayProfile(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-change-pay-profile")
	defer h.tracer.EndTransaction(txn)

	driverID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req ChangePayProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.ledgerService.ChangePayProfile(c, middleware.CarrierID(c), driverID,
		models.PayType(req.PayType), req.Rate, models.DriverKind(req.DriverKind))
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// HandleListDueRecurringItems previews the driver's due recurring items
func (h *DriverHandler) HandleListDueRecurringItems(c *gin.Context) {
	driverID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid as_of parameter"})
			return
		}
		asOf = parsed
	}

	items, err := h.settlementService.DueRecurringItems(c, middleware.CarrierID(c), driverID, asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// RegisterRoutes registers the handler's routes
func (h *DriverHandler) RegisterRoutes(router gin.IRouter) {
	drivers := router.Group("/drivers")
	drivers.POST("/:id/pay_profile", h.HandleChangePayProfile)
	drivers.GET("/:id/recurring_items/due", h.HandleListDueRecurringItems)
}
