package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// validationService is enough service to exercise the input checks that run
// before any database work.
func validationService() *Service {
	return &Service{tracer: tracing.NewNoopTracer()}
}

func TestCreateManualLineRejectsPassThroughCategory(t *testing.T) {
	s := validationService()

	_, err := s.CreateManualLine(context.Background(), uuid.New(), uuid.New(), uuid.New(),
		models.CategoryPassThrough, decimal.RequireFromString("50.00"), "driver advance")

	require.Error(t, err)
	assert.True(t, IsValidation(err), "a lone pass-through line would be unpaired")
}

func TestCreateManualLineRejectsUnknownCategory(t *testing.T) {
	s := validationService()

	_, err := s.CreateManualLine(context.Background(), uuid.New(), uuid.New(), uuid.New(),
		models.LineCategory("rebate"), decimal.RequireFromString("50.00"), "")

	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCreateManualLineRejectsZeroAmount(t *testing.T) {
	s := validationService()

	_, err := s.CreateManualLine(context.Background(), uuid.New(), uuid.New(), uuid.New(),
		models.CategoryBasePay, decimal.Zero, "detention")

	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestChangePayProfileRejectsUnknownPayType(t *testing.T) {
	s := validationService()

	_, err := s.ChangePayProfile(context.Background(), uuid.New(), uuid.New(),
		models.PayType("salary"), decimal.RequireFromString("500.00"), models.CompanyDriver)

	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestChangePayProfileRejectsUnknownDriverKind(t *testing.T) {
	s := validationService()

	_, err := s.ChangePayProfile(context.Background(), uuid.New(), uuid.New(),
		models.PayTypeFlat, decimal.RequireFromString("500.00"), models.DriverKind("contractor"))

	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestChangePayProfileRejectsNegativeRate(t *testing.T) {
	s := validationService()

	_, err := s.ChangePayProfile(context.Background(), uuid.New(), uuid.New(),
		models.PayTypePercent, decimal.RequireFromString("-25.00"), models.OwnerOperator)

	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestBuildPassThroughPairIsMutuallyLinked(t *testing.T) {
	source := &models.Payee{ID: uuid.New(), Name: "Ortega Trucking"}
	dest := &models.Payee{ID: uuid.New(), Name: "Alvarez, M"}
	carrierID := uuid.New()
	loadID := uuid.New()

	pair := buildPassThroughPair(carrierID, loadID, source, dest,
		decimal.RequireFromString("150.00"), "Fuel advance")
	deduction, payment := pair[0], pair[1]

	require.NotNil(t, deduction.PairLineID)
	require.NotNil(t, payment.PairLineID)
	assert.Equal(t, payment.ID, *deduction.PairLineID)
	assert.Equal(t, deduction.ID, *payment.PairLineID)

	assert.Equal(t, models.CategoryPassThrough, deduction.Category)
	assert.Equal(t, models.CategoryPassThrough, payment.Category)
	assert.Equal(t, source.ID, deduction.PayeeID)
	assert.Equal(t, dest.ID, payment.PayeeID)

	assert.Equal(t, "-150", deduction.Amount.String())
	assert.Equal(t, "150", payment.Amount.String())
	assert.True(t, deduction.Amount.Add(payment.Amount).IsZero(), "pair nets to zero")

	assert.Equal(t, "Fuel advance → Alvarez, M", deduction.Description)
	assert.Equal(t, "Fuel advance (from Ortega Trucking)", payment.Description)
}
