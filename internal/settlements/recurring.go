package settlements

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/fleetops/services/payroll/internal/models"
)

// normalizedAmount applies the sign convention for recurring items:
// deductions, loans and escrow withholdings reduce the payee's settlement,
// additions and bonuses increase it.
func normalizedAmount(itemType models.RecurringItemType, amount decimal.Decimal) decimal.Decimal {
	magnitude := amount.Abs().Round(2)
	switch itemType {
	case models.RecurringDeduction, models.RecurringLoan, models.RecurringEscrow:
		return magnitude.Neg()
	default:
		return magnitude
	}
}

// itemDue reports whether the item is due as of the given date. An unset
// next_date counts as immediately due.
func itemDue(item models.RecurringItem, asOf time.Time) bool {
	return item.NextDate == nil || !item.NextDate.After(asOf)
}

// advanceNextDate computes the item's next due date after being consumed by
// a settlement. The advance is relative to the settlement's period end, not
// the previous due date, so a skipped period does not pile up applications.
func advanceNextDate(schedule models.Schedule, periodEnd time.Time) time.Time {
	return periodEnd.AddDate(0, 0, schedule.IntervalDays())
}

func recurringDescription(item models.RecurringItem) string {
	return fmt.Sprintf("Recurring %s (%s)", item.ItemType, item.Schedule)
}

// applyDueItems materializes the payee's due recurring items as ledger
// lines attached to the settlement and advances each consumed item's
// next_date. Idempotent per settlement: an item already applied to this
// settlement (tracked through RecurringItemApplication's unique index) is
// skipped, so a retry after partial failure cannot duplicate lines.
func applyDueItems(tx *gorm.DB, settlement *models.Settlement) ([]models.LedgerLine, error) {
	var items []models.RecurringItem
	err := tx.
		Where("carrier_id = ? AND payee_id = ? AND active = ?",
			settlement.CarrierID, settlement.PayeeID, true).
		Order("created_at").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recurring items")
	}

	var priors []models.RecurringItemApplication
	if err := tx.Where("settlement_id = ?", settlement.ID).Find(&priors).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list recurring item applications")
	}
	applied := make(map[uuid.UUID]bool, len(priors))
	for _, prior := range priors {
		applied[prior.RecurringItemID] = true
	}

	var created []models.LedgerLine
	for _, item := range itemsToApply(items, applied, settlement.PeriodEnd) {
		line := recurringLine(settlement, item)
		if err := tx.Create(&line).Error; err != nil {
			return nil, errors.Wrap(err, "failed to insert recurring ledger line")
		}

		application := models.RecurringItemApplication{
			ID:              uuid.New(),
			SettlementID:    settlement.ID,
			RecurringItemID: item.ID,
			LedgerLineID:    line.ID,
		}
		if err := tx.Create(&application).Error; err != nil {
			return nil, errors.Wrap(err, "failed to record recurring item application")
		}

		next := advanceNextDate(item.Schedule, settlement.PeriodEnd)
		err = tx.Model(&models.RecurringItem{}).
			Where("id = ?", item.ID).
			Update("next_date", next).Error
		if err != nil {
			return nil, errors.Wrap(err, "failed to advance recurring item next date")
		}

		created = append(created, line)
	}

	return created, nil
}
