package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/fleetops/services/payroll/internal/accounting"
	"example.com/fleetops/services/payroll/internal/api/middleware"
	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/settlements"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// SettlementSearcher queries the settlement reporting index.
type SettlementSearcher interface {
	SearchSettlements(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error)
}

// SettlementHandler handles settlement lifecycle HTTP requests
type SettlementHandler struct {
	settlementService *settlements.Service
	searcher          SettlementSearcher
	tracer            tracing.Tracer
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(settlementService *settlements.Service, searcher SettlementSearcher, tracer tracing.Tracer) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		searcher:          searcher,
		tracer:            tracer,
	}
}

// CreateSettlementRequest represents a settlement creation request
type CreateSettlementRequest struct {
	PayeeID     uuid.UUID `json:"payee_id" binding:"required"`
	PeriodStart string    `json:"period_start" binding:"required"`
	PeriodEnd   string    `json:"period_end" binding:"required"`
}

// CreateBatchRequest represents a batch settlement creation request. An
// empty payee list means every payee with pending lines.
type CreateBatchRequest struct {
	PeriodStart string      `json:"period_start" binding:"required"`
	PeriodEnd   string      `json:"period_end" binding:"required"`
	PayeeIDs    []uuid.UUID `json:"payee_ids"`
}

// ExportSettlementRequest represents an accounting export request
type ExportSettlementRequest struct {
	Type string `json:"type" binding:"required"`
}

// HandleCreateSettlement creates a draft settlement for one payee
func (h *SettlementHandler) HandleCreateSettlement(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-settlement")
	defer h.tracer.EndTransaction(txn)

	var req CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	periodStart, periodEnd, ok := parsePeriod(c, req.PeriodStart, req.PeriodEnd)
	if !ok {
		return
	}

	settlement, err := h.settlementService.Create(c, middleware.CarrierID(c), req.PayeeID, periodStart, periodEnd)
	if err != nil {
		log.Error().Err(err).Str("payee_id", req.PayeeID.String()).Msg("Failed to create settlement")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, settlement)
}

// HandleCreateBatch creates settlements for many payees at once
func (h *SettlementHandler) HandleCreateBatch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-settlements-batch")
	defer h.tracer.EndTransaction(txn)

	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	periodStart, periodEnd, ok := parsePeriod(c, req.PeriodStart, req.PeriodEnd)
	if !ok {
		return
	}

	created, err := h.settlementService.CreateBatch(c, middleware.CarrierID(c), periodStart, periodEnd, req.PayeeIDs)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"created":     len(created),
		"settlements": created,
	})
}

// HandleGetSettlement returns a settlement with its lines
func (h *SettlementHandler) HandleGetSettlement(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	detail, err := h.settlementService.Get(c, middleware.CarrierID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// HandleApproveSettlement transitions a settlement to approved
func (h *SettlementHandler) HandleApproveSettlement(c *gin.Context) {
	h.transition(c, "api-approve-settlement", h.settlementService.Approve)
}

// HandlePaySettlement transitions a settlement to paid and locks its lines
func (h *SettlementHandler) HandlePaySettlement(c *gin.Context) {
	h.transition(c, "api-pay-settlement", h.settlementService.Pay)
}

// HandleVoidSettlement voids a settlement and its lines
func (h *SettlementHandler) HandleVoidSettlement(c *gin.Context) {
	h.transition(c, "api-void-settlement", h.settlementService.Void)
}

// HandleExportSettlement exports a paid settlement to the accounting system
func (h *SettlementHandler) HandleExportSettlement(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-export-settlement")
	defer h.tracer.EndTransaction(txn)

	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req ExportSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.settlementService.Export(c, middleware.CarrierID(c), id, accounting.ExportType(req.Type))
	if err != nil {
		log.Error().Err(err).Str("settlement_id", id.String()).Msg("Failed to export settlement")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleListPayeeSettlements returns a payee's settlements, newest first
func (h *SettlementHandler) HandleListPayeeSettlements(c *gin.Context) {
	payeeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	list, err := h.settlementService.ListByPayee(c, middleware.CarrierID(c), payeeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"settlements": list})
}

// HandleSearchSettlements queries the settlement reporting index
func (h *SettlementHandler) HandleSearchSettlements(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-settlements")
	defer h.tracer.EndTransaction(txn)

	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not available"})
		return
	}

	must := []map[string]interface{}{
		{"term": map[string]interface{}{"carrier_id": middleware.CarrierID(c).String()}},
	}
	if payeeID := c.Query("payee_id"); payeeID != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"payee_id": payeeID},
		})
	}
	if status := c.Query("status"); status != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"status": status},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []map[string]interface{}{
			{"paid_at": map[string]interface{}{"order": "desc"}},
		},
		"size": 50,
	}

	docs, err := h.searcher.SearchSettlements(c, query)
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": docs})
}

// RegisterRoutes registers the handler's routes
func (h *SettlementHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/search/settlements", h.HandleSearchSettlements)

	s := router.Group("/settlements")
	s.POST("", h.HandleCreateSettlement)
	s.POST("/batch", h.HandleCreateBatch)
	s.GET("/:id", h.HandleGetSettlement)
	s.POST("/:id/approve", h.HandleApproveSettlement)
	s.POST("/:id/pay", h.HandlePaySettlement)
	s.POST("/:id/void", h.HandleVoidSettlement)
	s.POST("/:id/export", h.HandleExportSettlement)

	router.GET("/payees/:id/settlements", h.HandleListPayeeSettlements)
}

type transitionFunc func(ctx context.Context, carrierID, id uuid.UUID) (*models.Settlement, error)

func (h *SettlementHandler) transition(c *gin.Context, name string, fn transitionFunc) {
	txn := h.tracer.StartTransaction(name)
	defer h.tracer.EndTransaction(txn)

	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	h.tracer.AddAttribute(txn, "settlement_id", id.String())

	settlement, err := fn(c, middleware.CarrierID(c), id)
	if err != nil {
		log.Error().Err(err).Str("settlement_id", id.String()).Msg("Settlement transition failed")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlement)
}

// parsePeriod parses the settlement period bounds, accepting dates or
// RFC 3339 timestamps.
func parsePeriod(c *gin.Context, start, end string) (time.Time, time.Time, bool) {
	periodStart, err := parseDate(start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_start"})
		return time.Time{}, time.Time{}, false
	}
	periodEnd, err := parseDate(end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_end"})
		return time.Time{}, time.Time{}, false
	}
	return periodStart, periodEnd, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
