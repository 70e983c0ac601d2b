package settlements

import (
	"time"

	"github.com/google/uuid"

	"example.com/fleetops/services/payroll/internal/models"
)

// linesToLock returns the ids of the lines paying a settlement freezes:
// every line attached to that settlement and not locked already. Lines of
// other settlements and previously locked lines are never touched.
func linesToLock(settlementID uuid.UUID, lines []models.LedgerLine) []uuid.UUID {
	var ids []uuid.UUID
	for _, line := range lines {
		if line.SettlementID == nil || *line.SettlementID != settlementID {
			continue
		}
		if line.Locked() {
			continue
		}
		ids = append(ids, line.ID)
	}
	return ids
}

// voidPlan returns the ids of the lines a settlement void stamps and the
// distinct load ids whose cached pay-ledger views the void makes stale.
// Lines are only ever stamped, never deleted; already-voided lines are left
// alone.
func voidPlan(settlementID uuid.UUID, lines []models.LedgerLine) (ids []uuid.UUID, loadIDs []uuid.UUID) {
	seen := make(map[uuid.UUID]bool)
	for _, line := range lines {
		if line.SettlementID == nil || *line.SettlementID != settlementID {
			continue
		}
		if line.Voided() {
			continue
		}
		ids = append(ids, line.ID)
		if line.LoadID != nil && !seen[*line.LoadID] {
			seen[*line.LoadID] = true
			loadIDs = append(loadIDs, *line.LoadID)
		}
	}
	return ids, loadIDs
}

// itemsToApply filters recurring items down to those due by the period end
// and not yet applied to the settlement, so a retried creation cannot
// materialize an item twice.
func itemsToApply(items []models.RecurringItem, applied map[uuid.UUID]bool, periodEnd time.Time) []models.RecurringItem {
	var due []models.RecurringItem
	for _, item := range items {
		if !itemDue(item, periodEnd) {
			continue
		}
		if applied[item.ID] {
			continue
		}
		due = append(due, item)
	}
	return due
}

// recurringLine materializes a recurring item as a ledger line attached to
// the settlement, with the sign convention applied.
func recurringLine(settlement *models.Settlement, item models.RecurringItem) models.LedgerLine {
	return models.LedgerLine{
		ID:           uuid.New(),
		CarrierID:    settlement.CarrierID,
		PayeeID:      item.PayeeID,
		SettlementID: &settlement.ID,
		Category:     models.RecurringCategory(item.ItemType),
		Description:  recurringDescription(item),
		Amount:       normalizedAmount(item.ItemType, item.Amount),
	}
}
