package settlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"example.com/fleetops/services/payroll/internal/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    models.SettlementStatus
		to      models.SettlementStatus
		allowed bool
	}{
		{models.SettlementDraft, models.SettlementApproved, true},
		{models.SettlementDraft, models.SettlementPaid, true},
		{models.SettlementDraft, models.SettlementVoided, true},
		{models.SettlementApproved, models.SettlementPaid, true},
		{models.SettlementApproved, models.SettlementVoided, true},
		{models.SettlementPaid, models.SettlementExported, true},

		{models.SettlementDraft, models.SettlementExported, false},
		{models.SettlementApproved, models.SettlementApproved, false},
		{models.SettlementPaid, models.SettlementVoided, false},
		{models.SettlementPaid, models.SettlementDraft, false},
		{models.SettlementExported, models.SettlementPaid, false},
		{models.SettlementExported, models.SettlementVoided, false},
		{models.SettlementVoided, models.SettlementApproved, false},
		{models.SettlementVoided, models.SettlementPaid, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, canTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}
