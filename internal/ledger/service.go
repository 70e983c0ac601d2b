package ledger

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/fleetops/services/payroll/internal/cache"
	"example.com/fleetops/services/payroll/internal/metrics"
	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/paycalc"
	"example.com/fleetops/services/payroll/internal/repositories"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// Service keeps a load's unlocked ledger lines consistent with current load
// state without ever touching locked history. Every mutating operation runs
// inside one transaction holding a row lock on the load, so concurrent
// recalculations of the same load serialize instead of racing on
// delete-then-insert.
type Service struct {
	db         *gorm.DB // Write database
	loadRepo   *repositories.LoadRepository
	payeeRepo  *repositories.PayeeRepository
	lineRepo   *repositories.LedgerLineRepository
	driverRepo *repositories.DriverRepository
	cache      *cache.RedisCache
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewService creates a new ledger service
func NewService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	redisCache *cache.RedisCache,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Service {
	return &Service{
		db:         db,
		loadRepo:   repositories.NewLoadRepository(db, readOnlyDB),
		payeeRepo:  repositories.NewPayeeRepository(db, readOnlyDB),
		lineRepo:   repositories.NewLedgerLineRepository(db, readOnlyDB),
		driverRepo: repositories.NewDriverRepository(db, readOnlyDB),
		cache:      redisCache,
		metrics:    metricsCollector,
		tracer:     tracer,
	}
}

// ChangePayProfile replaces the driver's pay terms append-only: the current
// active profile is deactivated and the new one inserted. Existing ledger
// lines are untouched; the new terms apply from the next recalculation.
func (s *Service) ChangePayProfile(ctx context.Context, carrierID, driverID uuid.UUID, payType models.PayType, rate decimal.Decimal, driverKind models.DriverKind) (*models.PayProfile, error) {
	txn := s.tracer.StartTransaction("change-pay-profile")
	defer s.tracer.EndTransaction(txn)

	switch payType {
	case models.PayTypePercent, models.PayTypePerMile, models.PayTypeFlat, models.PayTypeHourly:
	default:
		return nil, NewValidation("unknown pay type %q", payType)
	}
	switch driverKind {
	case models.CompanyDriver, models.OwnerOperator:
	default:
		return nil, NewValidation("unknown driver kind %q", driverKind)
	}
	if rate.IsNegative() {
		return nil, NewValidation("rate must not be negative")
	}

	if _, err := s.driverRepo.GetByID(ctx, carrierID, driverID); err != nil {
		return nil, NewNotFound("driver", driverID)
	}

	profile := &models.PayProfile{
		ID:         uuid.New(),
		DriverID:   driverID,
		PayType:    payType,
		Rate:       rate,
		DriverKind: driverKind,
	}
	if err := s.driverRepo.ChangePayProfile(ctx, profile); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	log.Info().
		Str("driver_id", driverID.String()).
		Str("pay_type", string(payType)).
		Msg("Pay profile changed")
	s.metrics.IncrementCounter("pay_profiles_changed")
	return profile, nil
}

// Recalc reconciles the load's ledger lines with its current financial
// state. With no locked lines the unlocked set is regenerated from scratch;
// once any line is locked the recompute emits per-payee adjustment lines
// instead, all sharing one adjustment group. Returns the newly created
// lines, empty when nothing changed.
func (s *Service) Recalc(ctx context.Context, carrierID, loadID uuid.UUID) ([]models.LedgerLine, error) {
	txn := s.tracer.StartTransaction("recalc-load")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "load_id", loadID.String())

	var created []models.LedgerLine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		load, err := lockLoad(tx, carrierID, loadID)
		if err != nil {
			return err
		}

		input, err := buildCalcInput(tx, load)
		if err != nil {
			return err
		}
		drafts := paycalc.Calculate(input)

		var existing []models.LedgerLine
		if err := tx.Where("load_id = ? AND voided_at IS NULL", loadID).Find(&existing).Error; err != nil {
			return errors.Wrap(err, "failed to fetch existing ledger lines")
		}

		plan := buildRecalcPlan(carrierID, loadID, existing, drafts, uuid.New())

		if err := applyRecalcPlan(tx, loadID, plan); err != nil {
			return err
		}
		created = plan.inserts
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("recalc")
		return nil, err
	}

	s.invalidateView(ctx, loadID)
	s.metrics.RecordSuccess("recalc")
	s.metrics.IncrementCounter("recalcs_run")
	s.metrics.IncrementCounterBy("lines_created", int64(len(created)))

	log.Info().
		Str("load_id", loadID.String()).
		Int("lines_created", len(created)).
		Msg("Load recalculated")

	return created, nil
}

// applyRecalcPlan executes a recalc plan inside tx. The delete is restricted
// to unlocked rows; any shortfall in affected rows means a locked line was
// targeted and the process halts rather than corrupting paid history.
func applyRecalcPlan(tx *gorm.DB, loadID uuid.UUID, plan recalcPlan) error {
	if len(plan.deleteIDs) > 0 {
		res := tx.Where("id IN ? AND locked_at IS NULL", plan.deleteIDs).Delete(&models.LedgerLine{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "failed to delete unlocked ledger lines")
		}
		if res.RowsAffected != int64(len(plan.deleteIDs)) {
			integrityViolation("recalc of load %s attempted to delete a locked line (%d of %d rows affected)",
				loadID, res.RowsAffected, len(plan.deleteIDs))
		}
	}
	if len(plan.inserts) > 0 {
		if err := tx.Create(&plan.inserts).Error; err != nil {
			return errors.Wrap(err, "failed to insert ledger lines")
		}
	}
	return nil
}

// CreateManualLine inserts a single manual ledger line on a load.
func (s *Service) CreateManualLine(ctx context.Context, carrierID, loadID, payeeID uuid.UUID, category models.LineCategory, amount decimal.Decimal, description string) (*models.LedgerLine, error) {
	txn := s.tracer.StartTransaction("create-manual-line")
	defer s.tracer.EndTransaction(txn)

	if !category.Valid() {
		return nil, NewValidation("unknown line category %q", category)
	}
	// A lone pass-through line would have no paired counterpart; the pair
	// is only ever written atomically through CreatePassThrough.
	if category == models.CategoryPassThrough {
		return nil, NewValidation("pass-through lines are created in pairs through the pass-through operation")
	}
	if amount.IsZero() {
		return nil, NewValidation("amount must be non-zero")
	}

	line := &models.LedgerLine{
		ID:          uuid.New(),
		CarrierID:   carrierID,
		LoadID:      &loadID,
		PayeeID:     payeeID,
		Category:    category,
		Description: description,
		Amount:      amount.Round(2),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockLoad(tx, carrierID, loadID); err != nil {
			return err
		}
		if err := checkPayee(tx, carrierID, payeeID); err != nil {
			return err
		}
		return errors.Wrap(tx.Create(line).Error, "failed to insert manual ledger line")
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.invalidateView(ctx, loadID)
	s.metrics.IncrementCounter("manual_lines_created")
	return line, nil
}

// PassThroughPair is the two halves of a pass-through transfer.
type PassThroughPair struct {
	Deduction models.LedgerLine `json:"deduction_line"`
	Payment   models.LedgerLine `json:"payment_line"`
}

// CreatePassThrough moves amount from one payee's account to another's as a
// linked pair: a negative line on the source, a positive line of equal
// magnitude on the destination. The halves reference each other through
// pair_line_id and are written in one transaction, so the pair exists
// entirely or not at all.
func (s *Service) CreatePassThrough(ctx context.Context, carrierID, loadID, sourcePayeeID, destPayeeID uuid.UUID, amount decimal.Decimal, description string) (*PassThroughPair, error) {
	txn := s.tracer.StartTransaction("create-pass-through")
	defer s.tracer.EndTransaction(txn)

	if amount.IsZero() {
		return nil, NewValidation("amount must be non-zero")
	}
	if sourcePayeeID == destPayeeID {
		return nil, NewValidation("source and destination payee must differ")
	}
	magnitude := amount.Abs().Round(2)
	if description == "" {
		description = "Pass-through"
	}

	var pair PassThroughPair
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockLoad(tx, carrierID, loadID); err != nil {
			return err
		}

		source, err := getPayee(tx, carrierID, sourcePayeeID)
		if err != nil {
			return err
		}
		dest, err := getPayee(tx, carrierID, destPayeeID)
		if err != nil {
			return err
		}

		pairLines := buildPassThroughPair(carrierID, loadID, source, dest, magnitude, description)
		lines := pairLines[:]
		if err := tx.Create(&lines).Error; err != nil {
			return errors.Wrap(err, "failed to insert pass-through pair")
		}
		pair = PassThroughPair{Deduction: lines[0], Payment: lines[1]}
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.invalidateView(ctx, loadID)
	s.metrics.IncrementCounter("pass_throughs_created")
	return &pair, nil
}

// CreateAdjustment inserts a manual adjustment line. When replacesLineID is
// given it must reference a locked line: adjustments correct locked history,
// unlocked lines are simply recalculated.
func (s *Service) CreateAdjustment(ctx context.Context, carrierID, loadID, payeeID uuid.UUID, amount decimal.Decimal, description string, replacesLineID *uuid.UUID) (*models.LedgerLine, error) {
	txn := s.tracer.StartTransaction("create-adjustment")
	defer s.tracer.EndTransaction(txn)

	if amount.IsZero() {
		return nil, NewValidation("amount must be non-zero")
	}
	if description == "" {
		return nil, NewValidation("description is required")
	}

	groupID := uuid.New()
	line := &models.LedgerLine{
		ID:                uuid.New(),
		CarrierID:         carrierID,
		LoadID:            &loadID,
		PayeeID:           payeeID,
		Category:          models.CategoryAdjustment,
		Description:       description,
		Amount:            amount.Round(2),
		ReplacesLineID:    replacesLineID,
		AdjustmentGroupID: &groupID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockLoad(tx, carrierID, loadID); err != nil {
			return err
		}
		if err := checkPayee(tx, carrierID, payeeID); err != nil {
			return err
		}
		if replacesLineID != nil {
			var replaced models.LedgerLine
			err := tx.Where("carrier_id = ? AND id = ?", carrierID, *replacesLineID).First(&replaced).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFound("ledger line", *replacesLineID)
			}
			if err != nil {
				return errors.Wrap(err, "failed to fetch replaced line")
			}
			if !replaced.Locked() {
				return NewInvalidState("line %s is not locked; recalculate instead of replacing", replaced.ID)
			}
		}
		return errors.Wrap(tx.Create(line).Error, "failed to insert adjustment line")
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.invalidateView(ctx, loadID)
	s.metrics.IncrementCounter("adjustments_created")
	return line, nil
}

// LoadEvent is the inbound message emitted by dispatch whenever a load's
// financial state changes.
type LoadEvent struct {
	LoadID    uuid.UUID `json:"load_id"`
	CarrierID uuid.UUID `json:"carrier_id"`
	EventType string    `json:"ev"`
}

// ProcessLoadEvent handles a load-changed message from the service bus by
// recalculating the load. On failure the load is flagged for the fallback
// reconciliation sweep.
func (s *Service) ProcessLoadEvent(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error {
	var event LoadEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal load event")
	}
	if event.LoadID == uuid.Nil || event.CarrierID == uuid.Nil {
		return errors.New("load event missing load_id or carrier_id")
	}

	s.tracer.AddAttribute(txn, "load_id", event.LoadID.String())

	if _, err := s.Recalc(ctx, event.CarrierID, event.LoadID); err != nil {
		if flagErr := s.loadRepo.SetNeedsRecalc(ctx, event.LoadID, true); flagErr != nil {
			log.Error().Err(flagErr).Str("load_id", event.LoadID.String()).
				Msg("Failed to flag load for fallback recalculation")
		}
		return errors.Wrap(err, "failed to recalculate load from event")
	}
	return nil
}

// ReconcileFlaggedLoads recalculates loads whose event-driven recalculation
// failed. Runs from the worker's fallback cron.
func (s *Service) ReconcileFlaggedLoads(ctx context.Context) error {
	txn := s.tracer.StartTransaction("reconcile-flagged-loads")
	defer s.tracer.EndTransaction(txn)

	loads, err := s.loadRepo.ListNeedsRecalc(ctx, 100)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to list flagged loads")
	}
	if len(loads) == 0 {
		return nil
	}

	log.Info().Msgf("Found %d loads flagged for recalculation", len(loads))

	for _, load := range loads {
		if _, err := s.Recalc(ctx, load.CarrierID, load.ID); err != nil {
			log.Error().Err(err).Str("load_id", load.ID.String()).
				Msg("Fallback recalculation failed")
			s.tracer.RecordError(txn, err)
			continue
		}
		if err := s.loadRepo.SetNeedsRecalc(ctx, load.ID, false); err != nil {
			log.Error().Err(err).Str("load_id", load.ID.String()).
				Msg("Failed to clear needs_recalc flag")
		}
	}
	return nil
}

func (s *Service) invalidateView(ctx context.Context, loadID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.PayLedgerCacheKey(loadID)); err != nil {
		log.Debug().Err(err).Str("load_id", loadID.String()).Msg("Failed to invalidate pay ledger cache")
	}
}

// lockLoad fetches the load row under FOR UPDATE, serializing all ledger
// mutation for the load for the duration of the transaction.
func lockLoad(tx *gorm.DB, carrierID, loadID uuid.UUID) (*models.Load, error) {
	var load models.Load
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("carrier_id = ? AND id = ?", carrierID, loadID).
		First(&load).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFound("load", loadID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock load")
	}
	return &load, nil
}

func getPayee(tx *gorm.DB, carrierID, payeeID uuid.UUID) (*models.Payee, error) {
	var payee models.Payee
	err := tx.Where("carrier_id = ? AND id = ?", carrierID, payeeID).First(&payee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFound("payee", payeeID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch payee")
	}
	return &payee, nil
}

func checkPayee(tx *gorm.DB, carrierID, payeeID uuid.UUID) error {
	_, err := getPayee(tx, carrierID, payeeID)
	return err
}

// buildCalcInput assembles the calculator input from the load and the
// assigned driver's pay configuration, read inside the same transaction.
func buildCalcInput(tx *gorm.DB, load *models.Load) (paycalc.Input, error) {
	input := paycalc.Input{
		RateAmount: load.RateAmount,
		TotalMiles: load.TotalMiles,
		LaborHours: load.LaborHours,
	}

	var charges []models.LoadCharge
	if err := tx.Where("load_id = ?", load.ID).Order("created_at").Find(&charges).Error; err != nil {
		return input, errors.Wrap(err, "failed to fetch load charges")
	}
	for _, ch := range charges {
		input.Charges = append(input.Charges, paycalc.Charge{
			Kind:        ch.Kind,
			Description: ch.Description,
			Amount:      ch.Amount,
		})
	}

	if load.DriverID == nil {
		return input, nil
	}

	var driver models.Driver
	err := tx.Where("carrier_id = ? AND id = ?", load.CarrierID, *load.DriverID).First(&driver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return input, NewNotFound("driver", *load.DriverID)
	}
	if err != nil {
		return input, errors.Wrap(err, "failed to fetch driver")
	}
	input.DriverPayeeID = driver.PayeeID

	var profile models.PayProfile
	err = tx.Where("driver_id = ? AND active = ?", driver.ID, true).First(&profile).Error
	if err == nil {
		input.Profile = &paycalc.Profile{
			PayType:    profile.PayType,
			Rate:       profile.Rate,
			DriverKind: profile.DriverKind,
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return input, errors.Wrap(err, "failed to fetch active pay profile")
	}

	var additional []models.AdditionalPayee
	if err := tx.Where("driver_id = ? AND active = ?", driver.ID, true).Order("created_at").Find(&additional).Error; err != nil {
		return input, errors.Wrap(err, "failed to fetch additional payees")
	}
	for _, ap := range additional {
		input.AdditionalPayees = append(input.AdditionalPayees, paycalc.AdditionalPayee{
			PayeeID: ap.PayeeID,
			Percent: ap.PayRatePercent,
		})
	}

	return input, nil
}
