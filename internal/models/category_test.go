package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineCategoryValid(t *testing.T) {
	valid := []LineCategory{
		CategoryBasePay,
		CategoryPassThrough,
		CategoryAdjustment,
		ChargeCategory("fuel_advance"),
		ChargeCategory("tolls"),
		RecurringCategory(RecurringEscrow),
		RecurringCategory(RecurringLoan),
	}
	for _, c := range valid {
		assert.True(t, c.Valid(), "%s should be valid", c)
	}

	invalid := []LineCategory{
		"",
		"bonus",
		"charge:",
		"recurring:",
		"recurring:subscription",
		"base pay",
	}
	for _, c := range invalid {
		assert.False(t, c.Valid(), "%s should be invalid", c)
	}
}

func TestLineCategoryFamilies(t *testing.T) {
	assert.True(t, ChargeCategory("fuel_advance").IsCharge())
	assert.False(t, ChargeCategory("fuel_advance").IsRecurring())
	assert.True(t, RecurringCategory(RecurringDeduction).IsRecurring())
	assert.False(t, CategoryBasePay.IsCharge())
	assert.Equal(t, LineCategory("charge:lumper_fee"), ChargeCategory("lumper_fee"))
	assert.Equal(t, LineCategory("recurring:escrow"), RecurringCategory(RecurringEscrow))
}

func TestScheduleIntervalDays(t *testing.T) {
	assert.Equal(t, 7, ScheduleWeekly.IntervalDays())
	assert.Equal(t, 14, ScheduleBiweekly.IntervalDays())
	assert.Equal(t, 30, ScheduleMonthly.IntervalDays())
}
