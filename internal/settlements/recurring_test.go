package settlements

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"example.com/fleetops/services/payroll/internal/models"
)

func TestNormalizedAmount(t *testing.T) {
	cases := []struct {
		itemType models.RecurringItemType
		amount   string
		want     string
	}{
		{models.RecurringDeduction, "45.00", "-45"},
		{models.RecurringDeduction, "-45.00", "-45"},
		{models.RecurringLoan, "120.00", "-120"},
		{models.RecurringEscrow, "75.00", "-75"},
		{models.RecurringEscrow, "-75.00", "-75"},
		{models.RecurringAddition, "30.00", "30"},
		{models.RecurringBonus, "-30.00", "30"},
	}

	for _, tc := range cases {
		got := normalizedAmount(tc.itemType, decimal.RequireFromString(tc.amount))
		assert.Equal(t, tc.want, got.String(), "%s %s", tc.itemType, tc.amount)
	}
}

func TestItemDue(t *testing.T) {
	asOf := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	past := asOf.AddDate(0, 0, -3)
	future := asOf.AddDate(0, 0, 3)

	assert.True(t, itemDue(models.RecurringItem{NextDate: nil}, asOf),
		"item never applied is immediately due")
	assert.True(t, itemDue(models.RecurringItem{NextDate: &past}, asOf))
	assert.True(t, itemDue(models.RecurringItem{NextDate: &asOf}, asOf))
	assert.False(t, itemDue(models.RecurringItem{NextDate: &future}, asOf))
}

func TestAdvanceNextDate(t *testing.T) {
	periodEnd := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, periodEnd.AddDate(0, 0, 7), advanceNextDate(models.ScheduleWeekly, periodEnd))
	assert.Equal(t, periodEnd.AddDate(0, 0, 14), advanceNextDate(models.ScheduleBiweekly, periodEnd))
	assert.Equal(t, periodEnd.AddDate(0, 0, 30), advanceNextDate(models.ScheduleMonthly, periodEnd))
}

func TestAdvanceNextDateFromPeriodEndNotPreviousDue(t *testing.T) {
	// An item overdue by several periods advances from the settlement's
	// period end, so the missed periods collapse into one application.
	periodEnd := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	next := advanceNextDate(models.ScheduleWeekly, periodEnd)
	assert.Equal(t, time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC), next)
}

func TestRecurringDescription(t *testing.T) {
	item := models.RecurringItem{
		ItemType: models.RecurringEscrow,
		Schedule: models.ScheduleWeekly,
	}
	assert.Equal(t, "Recurring escrow (weekly)", recurringDescription(item))
}
