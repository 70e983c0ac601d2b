package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"example.com/fleetops/services/payroll/internal/cache"
	"example.com/fleetops/services/payroll/internal/models"
)

const viewCacheTTL = 5 * time.Minute

// PayeeRef identifies a payee in the pay-ledger view.
type PayeeRef struct {
	ID   uuid.UUID        `json:"id"`
	Name string           `json:"name"`
	Kind models.PayeeKind `json:"kind"`
}

// PayeeLedger is one payee's slice of a load's ledger. Pass-through
// deductions are broken out so the UI can show the transfer separately from
// earned lines; the subtotal includes them.
type PayeeLedger struct {
	Payee                 PayeeRef            `json:"payee"`
	Subtotal              decimal.Decimal     `json:"subtotal"`
	Lines                 []models.LedgerLine `json:"lines"`
	PassThroughDeductions []models.LedgerLine `json:"pass_through_deductions"`
}

// PayLedgerView is the grouped pay ledger for one load.
type PayLedgerView struct {
	ByPayee   []PayeeLedger   `json:"by_payee"`
	LoadTotal decimal.Decimal `json:"load_total"`
}

// PayLedger returns the load's pay ledger grouped by payee. The view is
// read-mostly and served from cache; every ledger mutation invalidates it.
func (s *Service) PayLedger(ctx context.Context, carrierID, loadID uuid.UUID) (*PayLedgerView, error) {
	txn := s.tracer.StartTransaction("get-pay-ledger")
	defer s.tracer.EndTransaction(txn)

	key := cache.PayLedgerCacheKey(loadID)
	var cached PayLedgerView
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.metrics.IncrementCounter("pay_ledger_cache_hits")
		return &cached, nil
	}

	if _, err := s.loadRepo.GetByID(ctx, carrierID, loadID); err != nil {
		return nil, NewNotFound("load", loadID)
	}

	lines, err := s.lineRepo.ListByLoad(ctx, loadID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ledger lines")
	}

	payeeIDs := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.PayeeID]; !ok {
			seen[l.PayeeID] = struct{}{}
			payeeIDs = append(payeeIDs, l.PayeeID)
		}
	}

	payees := make(map[uuid.UUID]models.Payee, len(payeeIDs))
	if len(payeeIDs) > 0 {
		list, err := s.payeeRepo.GetByIDs(ctx, carrierID, payeeIDs)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch payees for view")
		}
		for _, p := range list {
			payees[p.ID] = p
		}
	}

	view := buildPayLedgerView(lines, payees)

	if err := s.cache.Set(ctx, key, view, viewCacheTTL); err != nil {
		log.Debug().Err(err).Str("load_id", loadID.String()).Msg("Failed to cache pay ledger view")
	}

	return &view, nil
}

// buildPayLedgerView groups non-voided lines per payee. Order is stable:
// payees by name then ID, lines in creation order.
func buildPayLedgerView(lines []models.LedgerLine, payees map[uuid.UUID]models.Payee) PayLedgerView {
	grouped := make(map[uuid.UUID]*PayeeLedger)
	var order []uuid.UUID

	for _, line := range lines {
		if line.Voided() {
			continue
		}
		entry, ok := grouped[line.PayeeID]
		if !ok {
			ref := PayeeRef{ID: line.PayeeID}
			if p, found := payees[line.PayeeID]; found {
				ref.Name = p.Name
				ref.Kind = p.Kind
			}
			entry = &PayeeLedger{Payee: ref}
			grouped[line.PayeeID] = entry
			order = append(order, line.PayeeID)
		}

		entry.Subtotal = entry.Subtotal.Add(line.Amount)
		if line.Category == models.CategoryPassThrough && line.Amount.IsNegative() {
			entry.PassThroughDeductions = append(entry.PassThroughDeductions, line)
		} else {
			entry.Lines = append(entry.Lines, line)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := grouped[order[i]].Payee, grouped[order[j]].Payee
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID.String() < b.ID.String()
	})

	view := PayLedgerView{}
	for _, id := range order {
		entry := grouped[id]
		view.LoadTotal = view.LoadTotal.Add(entry.Subtotal)
		view.ByPayee = append(view.ByPayee, *entry)
	}
	return view
}
