package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Carrier represents a tenant. Every other entity is scoped to exactly one
// carrier and must never be visible across carriers.
type Carrier struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
}

// PayeeKind distinguishes individual recipients from companies.
type PayeeKind string

const (
	PayeeIndividual PayeeKind = "individual"
	PayeeCompany    PayeeKind = "company"
)

// Payee is a person or company entitled to compensation. Created once per
// unique recipient and never hard-deleted.
type Payee struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	CarrierID uuid.UUID      `gorm:"type:uuid;not null;index" json:"carrier_id"`
	Name      string         `gorm:"not null" json:"name"`
	Kind      PayeeKind      `gorm:"not null;default:individual" json:"kind"`
	Carrier   Carrier        `gorm:"foreignKey:CarrierID" json:"-"`
}

// PayType is how a driver's base pay is computed from a load.
type PayType string

const (
	PayTypePercent PayType = "percent"
	PayTypePerMile PayType = "per_mile"
	PayTypeFlat    PayType = "flat"
	PayTypeHourly  PayType = "hourly"
)

// DriverKind separates company drivers (wages funded out of an owner's
// share) from owner-operators.
type DriverKind string

const (
	CompanyDriver DriverKind = "company_driver"
	OwnerOperator DriverKind = "owner_operator"
)

// Driver is the operational entity, optionally linked 1:1 to a Payee.
type Driver struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	CarrierID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"carrier_id"`
	Name        string         `gorm:"not null" json:"name"`
	PayeeID     *uuid.UUID     `gorm:"type:uuid" json:"payee_id"`
	Payee       *Payee         `gorm:"foreignKey:PayeeID" json:"-"`
	PayProfiles []PayProfile   `gorm:"foreignKey:DriverID" json:"-"`
}

// PayProfile holds a driver's pay terms. History is append-only: changing
// terms deactivates the old profile and inserts a new one. At most one
// profile per driver is active.
type PayProfile struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`
	DriverID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"driver_id"`
	PayType    PayType         `gorm:"not null" json:"pay_type"`
	Rate       decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"rate"`
	DriverKind DriverKind      `gorm:"not null;default:company_driver" json:"driver_kind"`
	Active     bool            `gorm:"not null;default:true;index" json:"active"`
	Driver     Driver          `gorm:"foreignKey:DriverID" json:"-"`
}

// AdditionalPayee links a driver to a secondary payee (e.g. the truck owner)
// with a percentage share of the load's freight.
type AdditionalPayee struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
	DriverID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"driver_id"`
	PayeeID        uuid.UUID       `gorm:"type:uuid;not null" json:"payee_id"`
	PayRatePercent decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"pay_rate_percent"`
	Active         bool            `gorm:"not null;default:true" json:"active"`
	Driver         Driver          `gorm:"foreignKey:DriverID" json:"-"`
	Payee          Payee           `gorm:"foreignKey:PayeeID" json:"-"`
}

// RecurringItemType classifies scheduled additions and deductions.
type RecurringItemType string

const (
	RecurringAddition  RecurringItemType = "addition"
	RecurringDeduction RecurringItemType = "deduction"
	RecurringEscrow    RecurringItemType = "escrow"
	RecurringLoan      RecurringItemType = "loan"
	RecurringBonus     RecurringItemType = "bonus"
)

// ValidRecurringItemType reports whether t is a known item type.
func ValidRecurringItemType(t RecurringItemType) bool {
	switch t {
	case RecurringAddition, RecurringDeduction, RecurringEscrow, RecurringLoan, RecurringBonus:
		return true
	}
	return false
}

// Schedule is the cadence of a recurring item.
type Schedule string

const (
	ScheduleWeekly   Schedule = "weekly"
	ScheduleBiweekly Schedule = "biweekly"
	ScheduleMonthly  Schedule = "monthly"
)

// IntervalDays returns how many days the next-due date advances when the
// item is consumed by a settlement.
func (s Schedule) IntervalDays() int {
	switch s {
	case ScheduleBiweekly:
		return 14
	case ScheduleMonthly:
		return 30
	default:
		return 7
	}
}

// RecurringItem is a scheduled addition/deduction tied to a driver and a
// target payee. Its next_date only advances when a settlement covering the
// due date is built; there is no cron-driven consumption.
type RecurringItem struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt    `gorm:"index" json:"-"`
	CarrierID uuid.UUID         `gorm:"type:uuid;not null;index" json:"carrier_id"`
	DriverID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"driver_id"`
	PayeeID   uuid.UUID         `gorm:"type:uuid;not null" json:"payee_id"`
	ItemType  RecurringItemType `gorm:"not null" json:"item_type"`
	Amount    decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Schedule  Schedule          `gorm:"not null" json:"schedule"`
	NextDate  *time.Time        `json:"next_date"`
	Active    bool              `gorm:"not null;default:true;index" json:"active"`
	Driver    Driver            `gorm:"foreignKey:DriverID" json:"-"`
	Payee     Payee             `gorm:"foreignKey:PayeeID" json:"-"`
}

// RecurringItemApplication is the idempotency guard for recurring item
// materialization: one row per (settlement, item), enforced by a composite
// unique index, so a retried apply cannot duplicate lines.
type RecurringItemApplication struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	SettlementID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_settlement_item" json:"settlement_id"`
	RecurringItemID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_settlement_item" json:"recurring_item_id"`
	LedgerLineID    uuid.UUID `gorm:"type:uuid;not null" json:"ledger_line_id"`
}

// Load is the financial view of a dispatched load: the freight rate, the
// assigned driver and the figures the non-percent pay types derive from.
// NeedsRecalc flags loads whose event-driven recalculation failed so the
// worker's fallback sweep can retry them.
type Load struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
	CarrierID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"carrier_id"`
	Reference   string          `gorm:"not null" json:"reference"`
	RateAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"rate_amount"`
	DriverID    *uuid.UUID      `gorm:"type:uuid;index" json:"driver_id"`
	TotalMiles  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_miles"`
	LaborHours  decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0" json:"labor_hours"`
	NeedsRecalc bool            `gorm:"not null;default:false;index" json:"needs_recalc"`
	Driver      *Driver         `gorm:"foreignKey:DriverID" json:"-"`
	Charges     []LoadCharge    `gorm:"foreignKey:LoadID" json:"-"`
	LedgerLines []LedgerLine    `gorm:"foreignKey:LoadID" json:"-"`
}

// LoadCharge is an accessorial charge attached to a load (detention, lumper,
// fuel advance). Charges always land on the assigned driver's account.
type LoadCharge struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
	LoadID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"load_id"`
	Kind        string          `gorm:"not null" json:"kind"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Load        Load            `gorm:"foreignKey:LoadID" json:"-"`
}

// LockedReasonPaidSettlement is the only locked_reason the lifecycle writes.
const LockedReasonPaidSettlement = "included_in_paid_settlement"

// LedgerLine is the atomic unit of compensation record. Once locked_at is
// set the line's amount, category, payee and load must never change and the
// row must never be deleted.
type LedgerLine struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	CarrierID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"carrier_id"`
	LoadID            *uuid.UUID      `gorm:"type:uuid;index" json:"load_id"`
	PayeeID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"payee_id"`
	SettlementID      *uuid.UUID      `gorm:"type:uuid;index" json:"settlement_id"`
	Category          LineCategory    `gorm:"not null" json:"category"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	LockedAt          *time.Time      `json:"locked_at"`
	LockedReason      *string         `json:"locked_reason"`
	VoidedAt          *time.Time      `json:"voided_at"`
	ReplacesLineID    *uuid.UUID      `gorm:"type:uuid" json:"replaces_line_id"`
	AdjustmentGroupID *uuid.UUID      `gorm:"type:uuid;index" json:"adjustment_group_id"`
	PairLineID        *uuid.UUID      `gorm:"type:uuid" json:"pair_line_id"`
	Payee             Payee           `gorm:"foreignKey:PayeeID" json:"-"`
}

// Locked reports whether the line is frozen by a paid settlement.
func (l *LedgerLine) Locked() bool {
	return l.LockedAt != nil
}

// Voided reports whether the line was excluded by a settlement void.
func (l *LedgerLine) Voided() bool {
	return l.VoidedAt != nil
}

// SettlementStatus is the settlement state machine: draft → approved → paid
// → exported, with voided reachable from draft/approved only.
type SettlementStatus string

const (
	SettlementDraft    SettlementStatus = "draft"
	SettlementApproved SettlementStatus = "approved"
	SettlementPaid     SettlementStatus = "paid"
	SettlementExported SettlementStatus = "exported"
	SettlementVoided   SettlementStatus = "voided"
)

// Settlement batches a payee's pending ledger lines over a period. Paying a
// settlement locks every attached line; that is the only transition that
// sets locked_at.
type Settlement struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `gorm:"index" json:"-"`
	CarrierID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"carrier_id"`
	PayeeID     uuid.UUID        `gorm:"type:uuid;not null;index" json:"payee_id"`
	PeriodStart time.Time        `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time        `gorm:"not null" json:"period_end"`
	Status      SettlementStatus `gorm:"not null;default:draft;index" json:"status"`
	PaidAt      *time.Time       `json:"paid_at"`
	ExportedAt  *time.Time       `json:"exported_at"`
	ExportRef   *string          `json:"export_ref"`
	Payee       Payee            `gorm:"foreignKey:PayeeID" json:"-"`
	Lines       []LedgerLine     `gorm:"foreignKey:SettlementID" json:"-"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&Carrier{},
		&Payee{},
		&Driver{},
		&PayProfile{},
		&AdditionalPayee{},
		&RecurringItem{},
		&RecurringItemApplication{},
		&Load{},
		&LoadCharge{},
		&LedgerLine{},
		&Settlement{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
