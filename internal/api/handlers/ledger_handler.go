package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"example.com/fleetops/services/payroll/internal/api/middleware"
	"example.com/fleetops/services/payroll/internal/ledger"
	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// LedgerHandler handles load ledger HTTP requests
type LedgerHandler struct {
	ledgerService *ledger.Service
	tracer        tracing.Tracer
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerService *ledger.Service, tracer tracing.Tracer) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		tracer:        tracer,
	}
}

// ManualLineRequest represents a manual ledger line request
type ManualLineRequest struct {
	PayeeID     uuid.UUID       `json:"payee_id" binding:"required"`
	Category    string          `json:"category" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
}

// PassThroughRequest represents a pass-through transfer request
type PassThroughRequest struct {
	SourcePayeeID uuid.UUID       `json:"source_payee_id" binding:"required"`
	DestPayeeID   uuid.UUID       `json:"dest_payee_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Description   string          `json:"description"`
}

// AdjustmentRequest represents a manual adjustment request
type AdjustmentRequest struct {
	PayeeID        uuid.UUID       `json:"payee_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Description    string          `json:"description" binding:"required"`
	ReplacesLineID *uuid.UUID      `json:"replaces_line_id"`
}

// HandleRecalcLoad recalculates a load's ledger lines
func (h *LedgerHandler) HandleRecalcLoad(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-recalc-load")
	defer h.tracer.EndTransaction(txn)

	loadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	h.tracer.AddAttribute(txn, "load_id", loadID.String())

	created, err := h.ledgerService.Recalc(c, middleware.CarrierID(c), loadID)
	if err != nil {
		log.Error().Err(err).Str("load_id", loadID.String()).Msg("Failed to recalculate load")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"load_id":       loadID,
		"lines_created": created,
	})
}

// HandleGetPayLedger returns the load's pay ledger grouped by payee
func (h *LedgerHandler) HandleGetPayLedger(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-pay-ledger")
	defer h.tracer.EndTransaction(txn)

	loadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.ledgerService.PayLedger(c, middleware.CarrierID(c), loadID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleCreateManualLine creates a manual ledger line on a load
func (h *LedgerHandler) HandleCreateManualLine(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-manual-line")
	defer h.tracer.EndTransaction(txn)

	loadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req ManualLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	line, err := h.ledgerService.CreateManualLine(c, middleware.CarrierID(c), loadID,
		req.PayeeID, models.LineCategory(req.Category), req.Amount, req.Description)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, line)
}

// HandleCreatePassThrough creates a linked pass-through pair on a load
func (h *LedgerHandler) HandleCreatePassThrough(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-pass-through")
	defer h.tracer.EndTransaction(txn)

	loadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req PassThroughRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := h.ledgerService.CreatePassThrough(c, middleware.CarrierID(c), loadID,
		req.SourcePayeeID, req.DestPayeeID, req.Amount, req.Description)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pair)
}

// HandleCreateAdjustment creates a manual adjustment line on a load
func (h *LedgerHandler) HandleCreateAdjustment(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-adjustment")
	defer h.tracer.EndTransaction(txn)

	loadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	line, err := h.ledgerService.CreateAdjustment(c, middleware.CarrierID(c), loadID,
		req.PayeeID, req.Amount, req.Description, req.ReplacesLineID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, line)
}

// RegisterRoutes registers the handler's routes
func (h *LedgerHandler) RegisterRoutes(router gin.IRouter) {
	loads := router.Group("/loads")
	loads.POST("/:id/recalc", h.HandleRecalcLoad)
	loads.GET("/:id/pay_ledger", h.HandleGetPayLedger)
	loads.POST("/:id/ledger_lines", h.HandleCreateManualLine)
	loads.POST("/:id/pass_throughs", h.HandleCreatePassThrough)
	loads.POST("/:id/adjustments", h.HandleCreateAdjustment)
}

// pathUUID parses a UUID path parameter, responding 400 on failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return uuid.Nil, false
	}
	return id, true
}
