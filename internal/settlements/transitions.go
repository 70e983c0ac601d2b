package settlements

import "example.com/fleetops/services/payroll/internal/models"

// canTransition encodes the settlement state machine: draft → approved →
// paid → exported, monotonic forward, with voided reachable from draft or
// approved only. Paying straight from draft is allowed.
func canTransition(from, to models.SettlementStatus) bool {
	switch to {
	case models.SettlementApproved:
		return from == models.SettlementDraft
	case models.SettlementPaid:
		return from == models.SettlementDraft || from == models.SettlementApproved
	case models.SettlementExported:
		return from == models.SettlementPaid
	case models.SettlementVoided:
		return from == models.SettlementDraft || from == models.SettlementApproved
	}
	return false
}
