// Package accounting exports paid settlements to the external accounting
// system as journal entries or bills. The client is constructed explicitly
// and injected into the settlement lifecycle, never shared process-wide, so
// credentials can vary per deployment and tests can substitute it.
package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"example.com/fleetops/services/payroll/config"
)

// ExportType selects the external representation of a settlement.
type ExportType string

const (
	ExportJournalEntry ExportType = "journal_entry"
	ExportBill         ExportType = "bill"
)

// Valid reports whether the export type is supported.
func (t ExportType) Valid() bool {
	return t == ExportJournalEntry || t == ExportBill
}

// exportPaths maps each export type to its collection path segment on the
// accounting API.
var exportPaths = map[ExportType]string{
	ExportJournalEntry: "journal_entries",
	ExportBill:         "bills",
}

// ExportLine is one settlement line in the export payload.
type ExportLine struct {
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// ExportRequest is the settlement snapshot sent to the accounting system.
type ExportRequest struct {
	SettlementID uuid.UUID       `json:"settlement_id"`
	CarrierID    uuid.UUID       `json:"carrier_id"`
	PayeeName    string          `json:"payee_name"`
	PeriodStart  time.Time       `json:"period_start"`
	PeriodEnd    time.Time       `json:"period_end"`
	Type         ExportType      `json:"type"`
	Total        decimal.Decimal `json:"total"`
	Lines        []ExportLine    `json:"lines"`
}

// ExportResult identifies the created external document.
type ExportResult struct {
	Ref        string    `json:"ref"`
	ExportedAt time.Time `json:"exported_at"`
}

// Client exports settlements to the accounting system.
type Client interface {
	ExportSettlement(ctx context.Context, req ExportRequest) (*ExportResult, error)
}

// HTTPClient is the REST implementation of Client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a new accounting export client
func NewHTTPClient(cfg config.AccountingConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExportSettlement posts the settlement snapshot and returns the external
// document reference. Any failure leaves the settlement untouched on the
// caller's side; the export is retryable.
func (c *HTTPClient) ExportSettlement(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if !req.Type.Valid() {
		return nil, errors.Errorf("unsupported export type %q", req.Type)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal export request")
	}

	url := fmt.Sprintf("%s/v1/%s", c.baseURL, exportPaths[req.Type])
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build export request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call accounting system")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read accounting response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("accounting export failed with status %d: %s", resp.StatusCode, body)
	}

	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse accounting response")
	}
	if doc.ID == "" {
		return nil, errors.New("accounting response missing document id")
	}

	log.Info().
		Str("settlement_id", req.SettlementID.String()).
		Str("export_ref", doc.ID).
		Str("type", string(req.Type)).
		Msg("Settlement exported to accounting system")

	return &ExportResult{Ref: doc.ID, ExportedAt: time.Now().UTC()}, nil
}
