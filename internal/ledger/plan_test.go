package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/paycalc"
)

func line(payeeID uuid.UUID, amount string, locked bool) models.LedgerLine {
	l := models.LedgerLine{
		ID:      uuid.New(),
		PayeeID: payeeID,
		Amount:  decimal.RequireFromString(amount),
	}
	if locked {
		now := time.Now()
		l.LockedAt = &now
	}
	return l
}

func draft(payeeID uuid.UUID, amount string) paycalc.Draft {
	return paycalc.Draft{
		PayeeID:   payeeID,
		Category:  models.CategoryBasePay,
		Amount:    decimal.RequireFromString(amount),
		PairIndex: -1,
	}
}

func TestPartitionLines(t *testing.T) {
	payee := uuid.New()
	voided := line(payee, "10.00", false)
	now := time.Now()
	voided.VoidedAt = &now

	locked, unlocked := partitionLines([]models.LedgerLine{
		line(payee, "100.00", true),
		line(payee, "50.00", false),
		voided,
	})

	assert.Len(t, locked, 1)
	assert.Len(t, unlocked, 1)
}

func TestBuildRecalcPlanRegeneratesWhenNothingLocked(t *testing.T) {
	carrierID := uuid.New()
	loadID := uuid.New()
	driver := uuid.New()

	existing := []models.LedgerLine{
		line(driver, "200.00", false),
		line(driver, "-25.00", false),
	}
	drafts := []paycalc.Draft{
		draft(driver, "250.00"),
		draft(driver, "-25.00"),
	}

	plan := buildRecalcPlan(carrierID, loadID, existing, drafts, uuid.New())

	assert.Len(t, plan.deleteIDs, 2)
	require.Len(t, plan.inserts, 2)
	assert.True(t, plan.inserts[0].Amount.Equal(decimal.RequireFromString("250.00")))
	for _, ins := range plan.inserts {
		assert.Equal(t, carrierID, ins.CarrierID)
		require.NotNil(t, ins.LoadID)
		assert.Equal(t, loadID, *ins.LoadID)
		assert.Nil(t, ins.AdjustmentGroupID)
	}
}

func TestBuildRecalcPlanEmitsAdjustmentsOverLockedLines(t *testing.T) {
	carrierID := uuid.New()
	loadID := uuid.New()
	driver := uuid.New()
	owner := uuid.New()
	groupID := uuid.New()

	// Both payees were already paid out, then the load's rate changed.
	existing := []models.LedgerLine{
		line(driver, "312.50", true),
		line(owner, "375.00", true),
	}
	drafts := []paycalc.Draft{
		draft(driver, "350.00"),
		draft(owner, "375.00"),
	}

	plan := buildRecalcPlan(carrierID, loadID, existing, drafts, groupID)

	assert.Empty(t, plan.deleteIDs)
	require.Len(t, plan.inserts, 1)

	adj := plan.inserts[0]
	assert.Equal(t, driver, adj.PayeeID)
	assert.Equal(t, models.CategoryAdjustment, adj.Category)
	assert.True(t, adj.Amount.Equal(decimal.RequireFromString("37.50")), "got %s", adj.Amount)
	require.NotNil(t, adj.AdjustmentGroupID)
	assert.Equal(t, groupID, *adj.AdjustmentGroupID)
}

func TestBuildRecalcPlanAdjustmentsShareGroup(t *testing.T) {
	carrierID := uuid.New()
	loadID := uuid.New()
	driver := uuid.New()
	owner := uuid.New()
	groupID := uuid.New()

	existing := []models.LedgerLine{
		line(driver, "300.00", true),
		line(owner, "400.00", true),
	}
	drafts := []paycalc.Draft{
		draft(driver, "330.00"),
		draft(owner, "440.00"),
	}

	plan := buildRecalcPlan(carrierID, loadID, existing, drafts, groupID)

	require.Len(t, plan.inserts, 2)
	for _, adj := range plan.inserts {
		require.NotNil(t, adj.AdjustmentGroupID)
		assert.Equal(t, groupID, *adj.AdjustmentGroupID)
	}
}

func TestBuildRecalcPlanDropsUnlockedLinesAlongsideAdjustments(t *testing.T) {
	carrierID := uuid.New()
	loadID := uuid.New()
	driver := uuid.New()

	stale := line(driver, "20.00", false)
	existing := []models.LedgerLine{
		line(driver, "300.00", true),
		stale,
	}
	drafts := []paycalc.Draft{draft(driver, "300.00")}

	plan := buildRecalcPlan(carrierID, loadID, existing, drafts, uuid.New())

	// The stale unlocked line goes, and since the locked total already
	// matches the desired total no adjustment is emitted.
	require.Len(t, plan.deleteIDs, 1)
	assert.Equal(t, stale.ID, plan.deleteIDs[0])
	assert.Empty(t, plan.inserts)
}

func TestBuildRecalcPlanToleratesPennyDrift(t *testing.T) {
	carrierID := uuid.New()
	loadID := uuid.New()
	driver := uuid.New()

	existing := []models.LedgerLine{line(driver, "333.33", true)}
	drafts := []paycalc.Draft{draft(driver, "333.34")}

	plan := buildRecalcPlan(carrierID, loadID, existing, drafts, uuid.New())
	assert.Empty(t, plan.inserts, "one cent of rounding drift should not produce an adjustment")

	drafts = []paycalc.Draft{draft(driver, "333.35")}
	plan = buildRecalcPlan(carrierID, loadID, existing, drafts, uuid.New())
	assert.Len(t, plan.inserts, 1, "two cents is a real difference")
}

func TestBuildRecalcPlanAdjustsPayeeRemovedFromSplit(t *testing.T) {
	carrierID := uuid.New()
	loadID := uuid.New()
	driver := uuid.New()
	removed := uuid.New()

	existing := []models.LedgerLine{
		line(driver, "300.00", true),
		line(removed, "100.00", true),
	}
	// The removed payee no longer appears in the drafts at all.
	drafts := []paycalc.Draft{draft(driver, "300.00")}

	plan := buildRecalcPlan(carrierID, loadID, existing, drafts, uuid.New())

	require.Len(t, plan.inserts, 1)
	assert.Equal(t, removed, plan.inserts[0].PayeeID)
	assert.True(t, plan.inserts[0].Amount.Equal(decimal.RequireFromString("-100.00")))
}

func TestDraftsToLinesLinksPassThroughPairs(t *testing.T) {
	carrierID := uuid.New()
	loadID := uuid.New()
	driver := uuid.New()
	owner := uuid.New()

	drafts := []paycalc.Draft{
		{PayeeID: driver, Category: models.CategoryBasePay, Amount: decimal.RequireFromString("312.50"), PairIndex: -1},
		{PayeeID: owner, Category: models.CategoryBasePay, Amount: decimal.RequireFromString("687.50"), PairIndex: -1},
		{PayeeID: owner, Category: models.CategoryPassThrough, Amount: decimal.RequireFromString("-312.50"), PairIndex: 0},
	}

	lines := draftsToLines(carrierID, loadID, drafts)
	require.Len(t, lines, 3)

	deduction := lines[2]
	basePay := lines[0]
	require.NotNil(t, deduction.PairLineID)
	require.NotNil(t, basePay.PairLineID)
	assert.Equal(t, basePay.ID, *deduction.PairLineID)
	assert.Equal(t, deduction.ID, *basePay.PairLineID)
	assert.Nil(t, lines[1].PairLineID)
}
