package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/fleetops/services/payroll/internal/models"
)

// PayeeRepository provides access to payee data
type PayeeRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewPayeeRepository creates a new payee repository
func NewPayeeRepository(db *gorm.DB, readOnlyDB *gorm.DB) *PayeeRepository {
	return &PayeeRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a payee by ID within the carrier scope
func (r *PayeeRepository) GetByID(ctx context.Context, carrierID, id uuid.UUID) (*models.Payee, error) {
	var payee models.Payee
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Where("carrier_id = ? AND id = ?", carrierID, id).
		First(&payee).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get payee by ID")
	}
	return &payee, nil
}

// GetByIDs gets multiple payees by ID within the carrier scope
func (r *PayeeRepository) GetByIDs(ctx context.Context, carrierID uuid.UUID, ids []uuid.UUID) ([]models.Payee, error) {
	var payees []models.Payee
	err := r.readOnlyDB.WithContext(ctx).
		Where("carrier_id = ? AND id IN ?", carrierID, ids).
		Find(&payees).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get payees by IDs")
	}
	return payees, nil
}

// ListWithPendingLines returns the IDs of payees that have at least one
// unlocked, unsettled, non-voided ledger line
func (r *PayeeRepository) ListWithPendingLines(ctx context.Context, carrierID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.LedgerLine{}).
		Distinct("payee_id").
		Where("carrier_id = ? AND settlement_id IS NULL AND locked_at IS NULL AND voided_at IS NULL", carrierID).
		Pluck("payee_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list payees with pending lines")
	}
	return ids, nil
}

// DriverRepository provides access to driver data and pay configuration
type DriverRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDriverRepository creates a new driver repository
func NewDriverRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DriverRepository {
	return &DriverRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a driver by ID within the carrier scope
func (r *DriverRepository) GetByID(ctx context.Context, carrierID, id uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	err := r.readOnlyDB.WithContext(ctx).
		Where("carrier_id = ? AND id = ?", carrierID, id).
		First(&driver).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get driver by ID")
	}
	return &driver, nil
}

// GetByPayeeID gets the driver linked to a payee, if any
func (r *DriverRepository) GetByPayeeID(ctx context.Context, carrierID, payeeID uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	err := r.readOnlyDB.WithContext(ctx).
		Where("carrier_id = ? AND payee_id = ?", carrierID, payeeID).
		First(&driver).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get driver by payee ID")
	}
	return &driver, nil
}

// ActiveProfile gets the driver's active pay profile, or nil when the driver
// has none
func (r *DriverRepository) ActiveProfile(ctx context.Context, driverID uuid.UUID) (*models.PayProfile, error) {
	var profile models.PayProfile
	err := r.readOnlyDB.WithContext(ctx).
		Where("driver_id = ? AND active = ?", driverID, true).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active pay profile")
	}
	return &profile, nil
}

// ActiveAdditionalPayees gets the driver's active additional payee shares
func (r *DriverRepository) ActiveAdditionalPayees(ctx context.Context, driverID uuid.UUID) ([]models.AdditionalPayee, error) {
	var payees []models.AdditionalPayee
	err := r.readOnlyDB.WithContext(ctx).
		Where("driver_id = ? AND active = ?", driverID, true).
		Order("created_at").
		Find(&payees).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active additional payees")
	}
	return payees, nil
}

// ChangePayProfile deactivates the driver's current active profile and
// inserts the new one, keeping the pay-term history append-only
func (r *DriverRepository) ChangePayProfile(ctx context.Context, profile *models.PayProfile) error {
	// Use write DB for writes
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.PayProfile{}).
			Where("driver_id = ? AND active = ?", profile.DriverID, true).
			Update("active", false).Error
		if err != nil {
			return errors.Wrap(err, "failed to deactivate current pay profile")
		}

		profile.Active = true
		if err := tx.Create(profile).Error; err != nil {
			return errors.Wrap(err, "failed to insert new pay profile")
		}
		return nil
	})
}

// LoadRepository provides access to load data
type LoadRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewLoadRepository creates a new load repository
func NewLoadRepository(db *gorm.DB, readOnlyDB *gorm.DB) *LoadRepository {
	return &LoadRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a load with its charges within the carrier scope
func (r *LoadRepository) GetByID(ctx context.Context, carrierID, id uuid.UUID) (*models.Load, error) {
	var load models.Load
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Charges").
		Where("carrier_id = ? AND id = ?", carrierID, id).
		First(&load).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get load by ID")
	}
	return &load, nil
}

// SetNeedsRecalc flags or clears a load for the fallback recalculation sweep
func (r *LoadRepository) SetNeedsRecalc(ctx context.Context, id uuid.UUID, needs bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Load{}).
		Where("id = ?", id).
		Update("needs_recalc", needs)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update needs_recalc flag")
	}

	if result.RowsAffected == 0 {
		return errors.New("no load updated")
	}

	return nil
}

// ListNeedsRecalc gets loads flagged for recalculation
func (r *LoadRepository) ListNeedsRecalc(ctx context.Context, limit int) ([]models.Load, error) {
	var loads []models.Load
	err := r.readOnlyDB.WithContext(ctx).
		Where("needs_recalc = ?", true).
		Limit(limit).
		Find(&loads).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list loads needing recalculation")
	}
	return loads, nil
}

// LedgerLineRepository provides read access to ledger lines. All mutation of
// ledger lines happens inside the ledger/settlement service transactions.
type LedgerLineRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewLedgerLineRepository creates a new ledger line repository
func NewLedgerLineRepository(db *gorm.DB, readOnlyDB *gorm.DB) *LedgerLineRepository {
	return &LedgerLineRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a ledger line within the carrier scope
func (r *LedgerLineRepository) GetByID(ctx context.Context, carrierID, id uuid.UUID) (*models.LedgerLine, error) {
	var line models.LedgerLine
	err := r.readOnlyDB.WithContext(ctx).
		Where("carrier_id = ? AND id = ?", carrierID, id).
		First(&line).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get ledger line by ID")
	}
	return &line, nil
}

// ListByLoad gets all non-voided lines for a load
func (r *LedgerLineRepository) ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.LedgerLine, error) {
	var lines []models.LedgerLine
	err := r.readOnlyDB.WithContext(ctx).
		Where("load_id = ? AND voided_at IS NULL", loadID).
		Order("created_at").
		Find(&lines).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ledger lines by load")
	}
	return lines, nil
}

// ListBySettlement gets all lines attached to a settlement
func (r *LedgerLineRepository) ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]models.LedgerLine, error) {
	var lines []models.LedgerLine
	err := r.readOnlyDB.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Order("created_at").
		Find(&lines).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ledger lines by settlement")
	}
	return lines, nil
}

// SettlementRepository provides access to settlement data
type SettlementRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SettlementRepository {
	return &SettlementRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a settlement within the carrier scope
func (r *SettlementRepository) GetByID(ctx context.Context, carrierID, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.readOnlyDB.WithContext(ctx).
		Where("carrier_id = ? AND id = ?", carrierID, id).
		First(&settlement).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get settlement by ID")
	}
	return &settlement, nil
}

// ListByPayee gets a payee's settlements, newest first
func (r *SettlementRepository) ListByPayee(ctx context.Context, carrierID, payeeID uuid.UUID) ([]models.Settlement, error) {
	var settlements []models.Settlement
	err := r.readOnlyDB.WithContext(ctx).
		Where("carrier_id = ? AND payee_id = ?", carrierID, payeeID).
		Order("created_at DESC").
		Find(&settlements).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list settlements by payee")
	}
	return settlements, nil
}

// RecurringItemRepository provides access to recurring item data
type RecurringItemRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewRecurringItemRepository creates a new recurring item repository
func NewRecurringItemRepository(db *gorm.DB, readOnlyDB *gorm.DB) *RecurringItemRepository {
	return &RecurringItemRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListDueForDriver gets the driver's active recurring items due on or before
// asOf. An unset next_date counts as immediately due.
func (r *RecurringItemRepository) ListDueForDriver(ctx context.Context, driverID uuid.UUID, asOf time.Time) ([]models.RecurringItem, error) {
	var items []models.RecurringItem
	err := r.readOnlyDB.WithContext(ctx).
		Where("driver_id = ? AND active = ? AND (next_date IS NULL OR next_date <= ?)", driverID, true, asOf).
		Order("created_at").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due recurring items")
	}
	return items, nil
}
