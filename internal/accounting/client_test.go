package accounting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fleetops/services/payroll/config"
)

func exportRequest(t ExportType) ExportRequest {
	return ExportRequest{
		SettlementID: uuid.New(),
		CarrierID:    uuid.New(),
		PayeeName:    "Alvarez, M",
		PeriodStart:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC),
		Type:         t,
		Total:        decimal.RequireFromString("1250.00"),
		Lines: []ExportLine{
			{Category: "base_pay", Description: "Freight % (25%)", Amount: decimal.RequireFromString("1250.00")},
		},
	}
}

func TestExportSettlementPostsJournalEntry(t *testing.T) {
	var gotPath string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		var body ExportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Alvarez, M", body.PayeeName)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "JE-2041"})
	}))
	defer server.Close()

	client := NewHTTPClient(config.AccountingConfig{BaseURL: server.URL, APIKey: "secret"})

	result, err := client.ExportSettlement(context.Background(), exportRequest(ExportJournalEntry))
	require.NoError(t, err)
	assert.Equal(t, "JE-2041", result.Ref)
	assert.False(t, result.ExportedAt.IsZero())
	assert.Equal(t, "/v1/journal_entries", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestExportSettlementErrorLeavesNoResult(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		http.Error(w, "ledger period closed", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewHTTPClient(config.AccountingConfig{BaseURL: server.URL})

	result, err := client.ExportSettlement(context.Background(), exportRequest(ExportBill))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "422")
	assert.Equal(t, "/v1/bills", gotPath)
}

func TestExportSettlementRejectsUnknownType(t *testing.T) {
	client := NewHTTPClient(config.AccountingConfig{BaseURL: "http://localhost:0"})

	_, err := client.ExportSettlement(context.Background(), exportRequest(ExportType("invoice")))
	require.Error(t, err)
}

func TestExportTypeValid(t *testing.T) {
	assert.True(t, ExportJournalEntry.Valid())
	assert.True(t, ExportBill.Valid())
	assert.False(t, ExportType("invoice").Valid())
	assert.False(t, ExportType("").Valid())
}
