package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/paycalc"
)

// adjustmentTolerance is the per-payee difference below which no adjustment
// line is emitted. One cent of drift is accepted as rounding noise.
var adjustmentTolerance = decimal.NewFromFloat(0.01)

// recalcPlan is the outcome of planning a recalculation: which unlocked
// lines to remove and which lines to insert. Planning is pure so the
// recompute rules are testable without a database.
type recalcPlan struct {
	deleteIDs []uuid.UUID
	inserts   []models.LedgerLine
}

// partitionLines splits a load's lines into locked and unlocked. Voided
// lines are dead history and belong to neither partition.
func partitionLines(lines []models.LedgerLine) (locked, unlocked []models.LedgerLine) {
	for _, l := range lines {
		if l.Voided() {
			continue
		}
		if l.Locked() {
			locked = append(locked, l)
		} else {
			unlocked = append(unlocked, l)
		}
	}
	return locked, unlocked
}

// buildRecalcPlan decides how to reconcile a load's existing lines with the
// calculator's drafts.
//
// With no locked lines the plan is full regeneration: drop every unlocked
// line and insert the drafts fresh. Once locked lines exist they are never
// touched; the plan still drops unlocked lines but then emits one adjustment
// per payee whose desired total differs from the locked total by more than
// the tolerance, all sharing groupID so the adjustments from one trigger can
// be traced together.
func buildRecalcPlan(carrierID uuid.UUID, loadID uuid.UUID, existing []models.LedgerLine, drafts []paycalc.Draft, groupID uuid.UUID) recalcPlan {
	locked, unlocked := partitionLines(existing)

	var plan recalcPlan
	for _, l := range unlocked {
		plan.deleteIDs = append(plan.deleteIDs, l.ID)
	}

	if len(locked) == 0 {
		plan.inserts = draftsToLines(carrierID, loadID, drafts)
		return plan
	}

	desired := paycalc.DesiredTotals(drafts)
	lockedTotals := make(map[uuid.UUID]decimal.Decimal, len(locked))
	for _, l := range locked {
		lockedTotals[l.PayeeID] = lockedTotals[l.PayeeID].Add(l.Amount)
	}

	// Every payee that appears on either side participates.
	payees := make(map[uuid.UUID]struct{}, len(desired)+len(lockedTotals))
	for id := range desired {
		payees[id] = struct{}{}
	}
	for id := range lockedTotals {
		payees[id] = struct{}{}
	}

	ordered := make([]uuid.UUID, 0, len(payees))
	for id := range payees {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	gid := groupID
	for _, payeeID := range ordered {
		diff := desired[payeeID].Sub(lockedTotals[payeeID])
		if diff.Abs().LessThanOrEqual(adjustmentTolerance) {
			continue
		}
		plan.inserts = append(plan.inserts, models.LedgerLine{
			ID:                uuid.New(),
			CarrierID:         carrierID,
			LoadID:            &loadID,
			PayeeID:           payeeID,
			Category:          models.CategoryAdjustment,
			Description:       "Pay recalculation adjustment",
			Amount:            diff,
			AdjustmentGroupID: &gid,
		})
	}

	return plan
}

// buildPassThroughPair constructs the two halves of a pass-through transfer,
// mutually linked through pair_line_id before either row exists: a negative
// line on the source account and a positive line of equal magnitude on the
// destination.
func buildPassThroughPair(carrierID, loadID uuid.UUID, source, dest *models.Payee, magnitude decimal.Decimal, description string) [2]models.LedgerLine {
	deductionID := uuid.New()
	paymentID := uuid.New()
	return [2]models.LedgerLine{
		{
			ID:          deductionID,
			CarrierID:   carrierID,
			LoadID:      &loadID,
			PayeeID:     source.ID,
			Category:    models.CategoryPassThrough,
			Description: description + " → " + dest.Name,
			Amount:      magnitude.Neg(),
			PairLineID:  &paymentID,
		},
		{
			ID:          paymentID,
			CarrierID:   carrierID,
			LoadID:      &loadID,
			PayeeID:     dest.ID,
			Category:    models.CategoryPassThrough,
			Description: description + " (from " + source.Name + ")",
			Amount:      magnitude,
			PairLineID:  &deductionID,
		},
	}
}

// draftsToLines materializes calculator drafts as ledger lines. IDs are
// assigned up front so pass-through pairs can reference each other before
// anything is written; both halves of a pair carry the other's ID in the
// same insert batch.
func draftsToLines(carrierID uuid.UUID, loadID uuid.UUID, drafts []paycalc.Draft) []models.LedgerLine {
	lines := make([]models.LedgerLine, len(drafts))
	for i, d := range drafts {
		lines[i] = models.LedgerLine{
			ID:          uuid.New(),
			CarrierID:   carrierID,
			LoadID:      &loadID,
			PayeeID:     d.PayeeID,
			Category:    d.Category,
			Description: d.Description,
			Amount:      d.Amount,
		}
	}
	for i, d := range drafts {
		if d.PairIndex < 0 || d.PairIndex >= len(lines) {
			continue
		}
		pairID := lines[d.PairIndex].ID
		lines[i].PairLineID = &pairID
		if lines[d.PairIndex].PairLineID == nil {
			selfID := lines[i].ID
			lines[d.PairIndex].PairLineID = &selfID
		}
	}
	return lines
}
