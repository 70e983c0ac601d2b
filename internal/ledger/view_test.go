package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fleetops/services/payroll/internal/models"
)

func TestBuildPayLedgerViewGroupsByPayee(t *testing.T) {
	driver := uuid.New()
	owner := uuid.New()

	payees := map[uuid.UUID]models.Payee{
		driver: {ID: driver, Name: "Alvarez, M", Kind: models.PayeeIndividual},
		owner:  {ID: owner, Name: "Blue Ridge Leasing", Kind: models.PayeeCompany},
	}

	lines := []models.LedgerLine{
		{ID: uuid.New(), PayeeID: driver, Category: models.CategoryBasePay, Amount: decimal.RequireFromString("312.50")},
		{ID: uuid.New(), PayeeID: owner, Category: models.CategoryBasePay, Amount: decimal.RequireFromString("687.50")},
		{ID: uuid.New(), PayeeID: owner, Category: models.CategoryPassThrough, Amount: decimal.RequireFromString("-312.50")},
		{ID: uuid.New(), PayeeID: driver, Category: models.CategoryPassThrough, Amount: decimal.RequireFromString("312.50")},
	}

	view := buildPayLedgerView(lines, payees)

	require.Len(t, view.ByPayee, 2)
	// Sorted by name: Alvarez before Blue Ridge.
	assert.Equal(t, "Alvarez, M", view.ByPayee[0].Payee.Name)
	assert.Equal(t, "Blue Ridge Leasing", view.ByPayee[1].Payee.Name)

	alvarez := view.ByPayee[0]
	assert.True(t, alvarez.Subtotal.Equal(decimal.RequireFromString("625.00")), "got %s", alvarez.Subtotal)
	assert.Len(t, alvarez.Lines, 2, "positive pass-through counts as a regular line")
	assert.Empty(t, alvarez.PassThroughDeductions)

	blueRidge := view.ByPayee[1]
	assert.True(t, blueRidge.Subtotal.Equal(decimal.RequireFromString("375.00")), "got %s", blueRidge.Subtotal)
	assert.Len(t, blueRidge.Lines, 1)
	require.Len(t, blueRidge.PassThroughDeductions, 1)
	assert.True(t, blueRidge.PassThroughDeductions[0].Amount.IsNegative())

	assert.True(t, view.LoadTotal.Equal(decimal.RequireFromString("1000.00")), "got %s", view.LoadTotal)
}

func TestBuildPayLedgerViewExcludesVoidedLines(t *testing.T) {
	driver := uuid.New()
	now := time.Now()

	lines := []models.LedgerLine{
		{ID: uuid.New(), PayeeID: driver, Category: models.CategoryBasePay, Amount: decimal.RequireFromString("200.00")},
		{ID: uuid.New(), PayeeID: driver, Category: models.CategoryBasePay, Amount: decimal.RequireFromString("999.00"), VoidedAt: &now},
	}

	view := buildPayLedgerView(lines, map[uuid.UUID]models.Payee{})

	require.Len(t, view.ByPayee, 1)
	assert.Len(t, view.ByPayee[0].Lines, 1)
	assert.True(t, view.LoadTotal.Equal(decimal.RequireFromString("200.00")))
}

func TestBuildPayLedgerViewEmpty(t *testing.T) {
	view := buildPayLedgerView(nil, nil)
	assert.Empty(t, view.ByPayee)
	assert.True(t, view.LoadTotal.IsZero())
}
