package settlements

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fleetops/services/payroll/internal/models"
)

func attachedLine(settlementID *uuid.UUID, loadID *uuid.UUID, locked, voided bool) models.LedgerLine {
	l := models.LedgerLine{
		ID:           uuid.New(),
		PayeeID:      uuid.New(),
		SettlementID: settlementID,
		LoadID:       loadID,
		Amount:       decimal.RequireFromString("100.00"),
	}
	now := time.Now()
	if locked {
		l.LockedAt = &now
	}
	if voided {
		l.VoidedAt = &now
	}
	return l
}

func TestLinesToLockTargetsOnlyThisSettlementsUnlockedLines(t *testing.T) {
	settlementID := uuid.New()
	otherID := uuid.New()

	pending := attachedLine(&settlementID, nil, false, false)
	alreadyLocked := attachedLine(&settlementID, nil, true, false)
	otherSettlement := attachedLine(&otherID, nil, false, false)
	unattached := attachedLine(nil, nil, false, false)

	ids := linesToLock(settlementID, []models.LedgerLine{
		pending, alreadyLocked, otherSettlement, unattached,
	})

	require.Len(t, ids, 1)
	assert.Equal(t, pending.ID, ids[0])
}

func TestLinesToLockEmpty(t *testing.T) {
	assert.Empty(t, linesToLock(uuid.New(), nil))
}

func TestVoidPlanStampsLinesAndReportsAffectedLoads(t *testing.T) {
	settlementID := uuid.New()
	loadA := uuid.New()
	loadB := uuid.New()

	onLoadA := attachedLine(&settlementID, &loadA, false, false)
	alsoOnLoadA := attachedLine(&settlementID, &loadA, false, false)
	onLoadB := attachedLine(&settlementID, &loadB, false, false)
	recurring := attachedLine(&settlementID, nil, false, false)

	ids, loadIDs := voidPlan(settlementID, []models.LedgerLine{
		onLoadA, alsoOnLoadA, onLoadB, recurring,
	})

	assert.ElementsMatch(t, []uuid.UUID{onLoadA.ID, alsoOnLoadA.ID, onLoadB.ID, recurring.ID}, ids)
	assert.ElementsMatch(t, []uuid.UUID{loadA, loadB}, loadIDs, "each affected load reported once")
}

func TestVoidPlanSkipsForeignAndAlreadyVoidedLines(t *testing.T) {
	settlementID := uuid.New()
	otherID := uuid.New()
	loadID := uuid.New()

	target := attachedLine(&settlementID, &loadID, false, false)
	alreadyVoided := attachedLine(&settlementID, &loadID, false, true)
	foreign := attachedLine(&otherID, &loadID, false, false)

	ids, loadIDs := voidPlan(settlementID, []models.LedgerLine{target, alreadyVoided, foreign})

	require.Len(t, ids, 1)
	assert.Equal(t, target.ID, ids[0])
	assert.Equal(t, []uuid.UUID{loadID}, loadIDs)
}

func TestItemsToApplySkipsAppliedAndNotDue(t *testing.T) {
	periodEnd := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	future := periodEnd.AddDate(0, 0, 3)
	past := periodEnd.AddDate(0, 0, -3)

	fresh := models.RecurringItem{ID: uuid.New(), NextDate: nil}
	overdue := models.RecurringItem{ID: uuid.New(), NextDate: &past}
	appliedItem := models.RecurringItem{ID: uuid.New(), NextDate: &past}
	notYetDue := models.RecurringItem{ID: uuid.New(), NextDate: &future}

	applied := map[uuid.UUID]bool{appliedItem.ID: true}

	due := itemsToApply([]models.RecurringItem{fresh, overdue, appliedItem, notYetDue}, applied, periodEnd)

	require.Len(t, due, 2)
	assert.Equal(t, fresh.ID, due[0].ID)
	assert.Equal(t, overdue.ID, due[1].ID)
}

func TestItemsToApplyIsIdempotentPerSettlement(t *testing.T) {
	periodEnd := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	item := models.RecurringItem{ID: uuid.New(), NextDate: nil}

	first := itemsToApply([]models.RecurringItem{item}, map[uuid.UUID]bool{}, periodEnd)
	require.Len(t, first, 1)

	// A retry sees the recorded application and must not re-materialize.
	second := itemsToApply([]models.RecurringItem{item}, map[uuid.UUID]bool{item.ID: true}, periodEnd)
	assert.Empty(t, second)
}

func TestRecurringLineMaterializesItem(t *testing.T) {
	settlement := &models.Settlement{
		ID:        uuid.New(),
		CarrierID: uuid.New(),
		PayeeID:   uuid.New(),
	}
	item := models.RecurringItem{
		ID:       uuid.New(),
		PayeeID:  settlement.PayeeID,
		ItemType: models.RecurringEscrow,
		Amount:   decimal.RequireFromString("75.00"),
		Schedule: models.ScheduleWeekly,
	}

	line := recurringLine(settlement, item)

	require.NotNil(t, line.SettlementID)
	assert.Equal(t, settlement.ID, *line.SettlementID)
	assert.Equal(t, settlement.CarrierID, line.CarrierID)
	assert.Equal(t, item.PayeeID, line.PayeeID)
	assert.Equal(t, models.LineCategory("recurring:escrow"), line.Category)
	assert.Equal(t, "-75", line.Amount.String())
	assert.Equal(t, "Recurring escrow (weekly)", line.Description)
}
