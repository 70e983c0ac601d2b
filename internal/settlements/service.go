// Package settlements owns the settlement lifecycle: batching a payee's
// pending ledger lines into a settlement, walking it through approval,
// payment and export, and materializing due recurring items along the way.
// Paying a settlement is the only operation that locks ledger lines.
package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/fleetops/services/payroll/internal/accounting"
	"example.com/fleetops/services/payroll/internal/cache"
	"example.com/fleetops/services/payroll/internal/ledger"
	"example.com/fleetops/services/payroll/internal/messaging"
	"example.com/fleetops/services/payroll/internal/metrics"
	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/repositories"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// Notifier publishes settlement lifecycle notifications. Delivery is
// best-effort and never blocks the financial write.
type Notifier interface {
	NotifySettlementEvent(ctx context.Context, event messaging.SettlementEvent) error
}

// Indexer pushes paid settlements into the reporting index, best-effort.
type Indexer interface {
	IndexSettlement(ctx context.Context, settlement *models.Settlement, payee *models.Payee, lines []models.LedgerLine) error
}

// Service implements the settlement lifecycle.
type Service struct {
	db             *gorm.DB // Write database
	payeeRepo      *repositories.PayeeRepository
	settlementRepo *repositories.SettlementRepository
	lineRepo       *repositories.LedgerLineRepository
	driverRepo     *repositories.DriverRepository
	recurringRepo  *repositories.RecurringItemRepository
	cache          *cache.RedisCache
	notifier       Notifier
	exporter       accounting.Client
	indexer        Indexer
	metrics        *metrics.Metrics
	tracer         tracing.Tracer
}

// NewService creates a new settlement service
func NewService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	redisCache *cache.RedisCache,
	notifier Notifier,
	exporter accounting.Client,
	indexer Indexer,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Service {
	return &Service{
		db:             db,
		payeeRepo:      repositories.NewPayeeRepository(db, readOnlyDB),
		settlementRepo: repositories.NewSettlementRepository(db, readOnlyDB),
		lineRepo:       repositories.NewLedgerLineRepository(db, readOnlyDB),
		driverRepo:     repositories.NewDriverRepository(db, readOnlyDB),
		recurringRepo:  repositories.NewRecurringItemRepository(db, readOnlyDB),
		cache:          redisCache,
		notifier:       notifier,
		exporter:       exporter,
		indexer:        indexer,
		metrics:        metricsCollector,
		tracer:         tracer,
	}
}

// DueRecurringItems previews the driver's recurring items that a settlement
// with the given period end would consume.
func (s *Service) DueRecurringItems(ctx context.Context, carrierID, driverID uuid.UUID, asOf time.Time) ([]models.RecurringItem, error) {
	if _, err := s.driverRepo.GetByID(ctx, carrierID, driverID); err != nil {
		return nil, ledger.NewNotFound("driver", driverID)
	}
	items, err := s.recurringRepo.ListDueForDriver(ctx, driverID, asOf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due recurring items")
	}
	return items, nil
}

// Create builds a draft settlement for the payee over the period: it
// attaches every pending (unlocked, unsettled, non-voided) ledger line and
// materializes due recurring items. The payee row is locked for the
// duration so two concurrent creates cannot double-attach the same line.
func (s *Service) Create(ctx context.Context, carrierID, payeeID uuid.UUID, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	txn := s.tracer.StartTransaction("create-settlement")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "payee_id", payeeID.String())

	if periodEnd.Before(periodStart) {
		return nil, ledger.NewValidation("period_end is before period_start")
	}

	settlement := &models.Settlement{
		ID:          uuid.New(),
		CarrierID:   carrierID,
		PayeeID:     payeeID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      models.SettlementDraft,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPayee(tx, carrierID, payeeID); err != nil {
			return err
		}

		if err := tx.Create(settlement).Error; err != nil {
			return errors.Wrap(err, "failed to create settlement")
		}

		res := tx.Model(&models.LedgerLine{}).
			Where("carrier_id = ? AND payee_id = ? AND settlement_id IS NULL AND locked_at IS NULL AND voided_at IS NULL",
				carrierID, payeeID).
			Update("settlement_id", settlement.ID)
		if res.Error != nil {
			return errors.Wrap(res.Error, "failed to attach pending ledger lines")
		}

		recurring, err := applyDueItems(tx, settlement)
		if err != nil {
			return err
		}

		log.Info().
			Str("settlement_id", settlement.ID.String()).
			Str("payee_id", payeeID.String()).
			Int64("lines_attached", res.RowsAffected).
			Int("recurring_applied", len(recurring)).
			Msg("Settlement created")
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("create_settlement")
		return nil, err
	}

	s.metrics.RecordSuccess("create_settlement")
	s.metrics.IncrementCounter("settlements_created")
	s.notify(ctx, "settlement.created", settlement)
	return settlement, nil
}

// CreateBatch creates settlements for the given payees, or for every payee
// with pending lines when payeeIDs is empty. Each payee is independent: one
// failure is logged and the rest proceed.
func (s *Service) CreateBatch(ctx context.Context, carrierID uuid.UUID, periodStart, periodEnd time.Time, payeeIDs []uuid.UUID) ([]models.Settlement, error) {
	txn := s.tracer.StartTransaction("create-settlements-batch")
	defer s.tracer.EndTransaction(txn)

	if len(payeeIDs) == 0 {
		var err error
		payeeIDs, err = s.payeeRepo.ListWithPendingLines(ctx, carrierID)
		if err != nil {
			s.tracer.RecordError(txn, err)
			return nil, errors.Wrap(err, "failed to list payees with pending lines")
		}
	}

	created := make([]models.Settlement, 0, len(payeeIDs))
	for _, payeeID := range payeeIDs {
		settlement, err := s.Create(ctx, carrierID, payeeID, periodStart, periodEnd)
		if err != nil {
			log.Error().Err(err).
				Str("payee_id", payeeID.String()).
				Msg("Failed to create settlement in batch, continuing")
			s.tracer.RecordError(txn, err)
			continue
		}
		created = append(created, *settlement)
	}

	log.Info().Int("created", len(created)).Int("requested", len(payeeIDs)).
		Msg("Settlement batch finished")
	return created, nil
}

// Approve transitions a draft settlement to approved. No line mutation.
func (s *Service) Approve(ctx context.Context, carrierID, id uuid.UUID) (*models.Settlement, error) {
	txn := s.tracer.StartTransaction("approve-settlement")
	defer s.tracer.EndTransaction(txn)

	var settlement *models.Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settlement, err = transition(tx, carrierID, id, models.SettlementApproved)
		return err
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.IncrementCounter("settlements_approved")
	s.notify(ctx, "settlement.approved", settlement)
	return settlement, nil
}

// Pay transitions the settlement to paid and locks every attached line in
// the same transaction. This is the only place locked_at is ever set; from
// here on the lines are immutable history.
func (s *Service) Pay(ctx context.Context, carrierID, id uuid.UUID) (*models.Settlement, error) {
	txn := s.tracer.StartTransaction("pay-settlement")
	defer s.tracer.EndTransaction(txn)

	now := time.Now().UTC()
	var settlement *models.Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settlement, err = lockSettlement(tx, carrierID, id)
		if err != nil {
			return err
		}
		if !canTransition(settlement.Status, models.SettlementPaid) {
			return ledger.NewInvalidState("cannot pay settlement in status %q", settlement.Status)
		}

		settlement.Status = models.SettlementPaid
		settlement.PaidAt = &now
		err = tx.Model(settlement).
			Updates(map[string]interface{}{"status": models.SettlementPaid, "paid_at": now}).Error
		if err != nil {
			return errors.Wrap(err, "failed to mark settlement paid")
		}

		var lines []models.LedgerLine
		if err := tx.Where("settlement_id = ?", id).Find(&lines).Error; err != nil {
			return errors.Wrap(err, "failed to fetch settlement lines")
		}
		lockIDs := linesToLock(id, lines)
		if len(lockIDs) > 0 {
			err := tx.Model(&models.LedgerLine{}).
				Where("id IN ?", lockIDs).
				Updates(map[string]interface{}{
					"locked_at":     now,
					"locked_reason": models.LockedReasonPaidSettlement,
				}).Error
			if err != nil {
				return errors.Wrap(err, "failed to lock settlement lines")
			}
		}

		log.Info().
			Str("settlement_id", id.String()).
			Int("lines_locked", len(lockIDs)).
			Msg("Settlement paid, lines locked")
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("pay_settlement")
		return nil, err
	}

	s.metrics.RecordSuccess("pay_settlement")
	s.metrics.IncrementCounter("settlements_paid")
	s.notify(ctx, "settlement.paid", settlement)
	s.indexPaid(ctx, settlement)
	return settlement, nil
}

// Void cancels a draft or approved settlement. Its lines are soft-voided:
// voided_at is stamped, the settlement reference is cleared, and nothing is
// physically deleted, so financial history stays auditable. Voided lines
// are excluded from totals and from future settlements.
func (s *Service) Void(ctx context.Context, carrierID, id uuid.UUID) (*models.Settlement, error) {
	txn := s.tracer.StartTransaction("void-settlement")
	defer s.tracer.EndTransaction(txn)

	now := time.Now().UTC()
	var settlement *models.Settlement
	var staleLoads []uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settlement, err = lockSettlement(tx, carrierID, id)
		if err != nil {
			return err
		}
		if !canTransition(settlement.Status, models.SettlementVoided) {
			return ledger.NewInvalidState("cannot void settlement in status %q", settlement.Status)
		}

		settlement.Status = models.SettlementVoided
		if err := tx.Model(settlement).Update("status", models.SettlementVoided).Error; err != nil {
			return errors.Wrap(err, "failed to mark settlement voided")
		}

		var lines []models.LedgerLine
		if err := tx.Where("settlement_id = ?", id).Find(&lines).Error; err != nil {
			return errors.Wrap(err, "failed to fetch settlement lines")
		}
		voidIDs, loadIDs := voidPlan(id, lines)
		staleLoads = loadIDs
		if len(voidIDs) > 0 {
			err := tx.Model(&models.LedgerLine{}).
				Where("id IN ?", voidIDs).
				Updates(map[string]interface{}{
					"voided_at":     now,
					"settlement_id": nil,
				}).Error
			if err != nil {
				return errors.Wrap(err, "failed to void settlement lines")
			}
		}

		log.Info().
			Str("settlement_id", id.String()).
			Int("lines_voided", len(voidIDs)).
			Msg("Settlement voided")
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	// Voided lines no longer count toward their loads' pay ledgers.
	for _, loadID := range staleLoads {
		s.invalidateView(ctx, loadID)
	}

	s.metrics.IncrementCounter("settlements_voided")
	return settlement, nil
}

// Export sends a paid settlement to the accounting system. Failure leaves
// the settlement paid and retryable; only a successful export transitions
// it to exported.
func (s *Service) Export(ctx context.Context, carrierID, id uuid.UUID, exportType accounting.ExportType) (*accounting.ExportResult, error) {
	txn := s.tracer.StartTransaction("export-settlement")
	defer s.tracer.EndTransaction(txn)

	if !exportType.Valid() {
		return nil, ledger.NewValidation("unsupported export type %q", exportType)
	}

	settlement, err := s.settlementRepo.GetByID(ctx, carrierID, id)
	if err != nil {
		return nil, ledger.NewNotFound("settlement", id)
	}
	if settlement.Status != models.SettlementPaid {
		return nil, ledger.NewInvalidState("only paid settlements can be exported, settlement is %q", settlement.Status)
	}

	payee, err := s.payeeRepo.GetByID(ctx, carrierID, settlement.PayeeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch settlement payee")
	}
	lines, err := s.lineRepo.ListBySettlement(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch settlement lines")
	}

	req := accounting.ExportRequest{
		SettlementID: settlement.ID,
		CarrierID:    settlement.CarrierID,
		PayeeName:    payee.Name,
		PeriodStart:  settlement.PeriodStart,
		PeriodEnd:    settlement.PeriodEnd,
		Type:         exportType,
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
		req.Lines = append(req.Lines, accounting.ExportLine{
			Category:    string(line.Category),
			Description: line.Description,
			Amount:      line.Amount,
		})
	}
	req.Total = total

	result, err := s.exporter.ExportSettlement(ctx, req)
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("export_settlement")
		return nil, errors.Wrap(err, "accounting export failed, settlement remains paid")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockSettlement(tx, carrierID, id)
		if err != nil {
			return err
		}
		if locked.Status != models.SettlementPaid {
			return ledger.NewInvalidState("settlement left paid status during export, now %q", locked.Status)
		}
		return errors.Wrap(tx.Model(locked).Updates(map[string]interface{}{
			"status":      models.SettlementExported,
			"exported_at": result.ExportedAt,
			"export_ref":  result.Ref,
		}).Error, "failed to mark settlement exported")
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.RecordSuccess("export_settlement")
	s.metrics.IncrementCounter("settlements_exported")
	return result, nil
}

// SettlementDetail is a settlement with its attached lines.
type SettlementDetail struct {
	Settlement models.Settlement   `json:"settlement"`
	Lines      []models.LedgerLine `json:"lines"`
}

// ListByPayee returns the payee's settlements, newest first.
func (s *Service) ListByPayee(ctx context.Context, carrierID, payeeID uuid.UUID) ([]models.Settlement, error) {
	if _, err := s.payeeRepo.GetByID(ctx, carrierID, payeeID); err != nil {
		return nil, ledger.NewNotFound("payee", payeeID)
	}
	return s.settlementRepo.ListByPayee(ctx, carrierID, payeeID)
}

// Get fetches a settlement and its lines.
func (s *Service) Get(ctx context.Context, carrierID, id uuid.UUID) (*SettlementDetail, error) {
	settlement, err := s.settlementRepo.GetByID(ctx, carrierID, id)
	if err != nil {
		return nil, ledger.NewNotFound("settlement", id)
	}
	lines, err := s.lineRepo.ListBySettlement(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch settlement lines")
	}
	return &SettlementDetail{Settlement: *settlement, Lines: lines}, nil
}

// notify publishes a settlement event, logging and swallowing any failure.
func (s *Service) notify(ctx context.Context, eventType string, settlement *models.Settlement) {
	if s.notifier == nil {
		return
	}
	event := messaging.SettlementEvent{
		Type:         eventType,
		SettlementID: settlement.ID,
		CarrierID:    settlement.CarrierID,
		PayeeID:      settlement.PayeeID,
		Status:       settlement.Status,
	}
	if err := s.notifier.NotifySettlementEvent(ctx, event); err != nil {
		log.Warn().Err(err).
			Str("settlement_id", settlement.ID.String()).
			Str("type", eventType).
			Msg("Failed to send settlement notification")
		s.metrics.IncrementCounter("notification_failures")
	}
}

func (s *Service) invalidateView(ctx context.Context, loadID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.PayLedgerCacheKey(loadID)); err != nil {
		log.Debug().Err(err).Str("load_id", loadID.String()).Msg("Failed to invalidate pay ledger cache")
	}
}

// indexPaid pushes the paid settlement into the reporting index.
func (s *Service) indexPaid(ctx context.Context, settlement *models.Settlement) {
	if s.indexer == nil {
		return
	}
	payee, err := s.payeeRepo.GetByID(ctx, settlement.CarrierID, settlement.PayeeID)
	if err != nil {
		log.Warn().Err(err).Str("settlement_id", settlement.ID.String()).
			Msg("Failed to fetch payee for settlement indexing")
		return
	}
	lines, err := s.lineRepo.ListBySettlement(ctx, settlement.ID)
	if err != nil {
		log.Warn().Err(err).Str("settlement_id", settlement.ID.String()).
			Msg("Failed to fetch lines for settlement indexing")
		return
	}
	if err := s.indexer.IndexSettlement(ctx, settlement, payee, lines); err != nil {
		log.Warn().Err(err).Str("settlement_id", settlement.ID.String()).
			Msg("Failed to index settlement")
		s.metrics.IncrementCounter("index_failures")
	}
}

// transition moves a settlement to the target status after validating the
// state machine, holding the row lock.
func transition(tx *gorm.DB, carrierID, id uuid.UUID, to models.SettlementStatus) (*models.Settlement, error) {
	settlement, err := lockSettlement(tx, carrierID, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(settlement.Status, to) {
		return nil, ledger.NewInvalidState("cannot transition settlement from %q to %q", settlement.Status, to)
	}
	settlement.Status = to
	if err := tx.Model(settlement).Update("status", to).Error; err != nil {
		return nil, errors.Wrap(err, "failed to update settlement status")
	}
	return settlement, nil
}

// lockSettlement fetches the settlement row under FOR UPDATE.
func lockSettlement(tx *gorm.DB, carrierID, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("carrier_id = ? AND id = ?", carrierID, id).
		First(&settlement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.NewNotFound("settlement", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock settlement")
	}
	return &settlement, nil
}

// lockPayee fetches the payee row under FOR UPDATE, serializing settlement
// creation per payee.
func lockPayee(tx *gorm.DB, carrierID, payeeID uuid.UUID) (*models.Payee, error) {
	var payee models.Payee
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("carrier_id = ? AND id = ?", carrierID, payeeID).
		First(&payee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.NewNotFound("payee", payeeID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock payee")
	}
	return &payee, nil
}
