package models

import "strings"

// LineCategory discriminates ledger lines. The set is closed: the three base
// categories plus the parameterized charge:<kind> and recurring:<kind>
// families. Downstream consumers (reporting, export) must never see a value
// outside this surface.
type LineCategory string

const (
	CategoryBasePay     LineCategory = "base_pay"
	CategoryPassThrough LineCategory = "pass_through"
	CategoryAdjustment  LineCategory = "adjustment"

	chargePrefix    = "charge:"
	recurringPrefix = "recurring:"
)

// ChargeCategory builds the category for a load charge of the given kind.
func ChargeCategory(kind string) LineCategory {
	return LineCategory(chargePrefix + kind)
}

// RecurringCategory builds the category for a materialized recurring item.
func RecurringCategory(t RecurringItemType) LineCategory {
	return LineCategory(recurringPrefix + string(t))
}

// IsCharge reports whether the category belongs to the charge family.
func (c LineCategory) IsCharge() bool {
	return strings.HasPrefix(string(c), chargePrefix)
}

// IsRecurring reports whether the category belongs to the recurring family.
func (c LineCategory) IsRecurring() bool {
	return strings.HasPrefix(string(c), recurringPrefix)
}

// Valid reports whether the category is one of the closed set.
func (c LineCategory) Valid() bool {
	switch c {
	case CategoryBasePay, CategoryPassThrough, CategoryAdjustment:
		return true
	}
	if kind, ok := strings.CutPrefix(string(c), chargePrefix); ok {
		return kind != ""
	}
	if kind, ok := strings.CutPrefix(string(c), recurringPrefix); ok {
		return ValidRecurringItemType(RecurringItemType(kind))
	}
	return false
}
