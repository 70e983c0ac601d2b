package paycalc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"example.com/fleetops/services/payroll/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Percent split with a company driver and one owner share: the driver's
// wage must come back out of the owner's account as a pass-through, so the
// sum of all lines equals the owner's gross share.
func TestCalculatePercentSplitWithPassThrough(t *testing.T) {
	driverPayee := uuid.New()
	ownerPayee := uuid.New()

	drafts := Calculate(Input{
		RateAmount:    dec("1250.00"),
		DriverPayeeID: &driverPayee,
		Profile: &Profile{
			PayType:    models.PayTypePercent,
			Rate:       dec("25"),
			DriverKind: models.CompanyDriver,
		},
		AdditionalPayees: []AdditionalPayee{
			{PayeeID: ownerPayee, Percent: dec("55")},
		},
	})

	require.Len(t, drafts, 3)

	require.Equal(t, driverPayee, drafts[0].PayeeID)
	require.Equal(t, models.CategoryBasePay, drafts[0].Category)
	require.True(t, drafts[0].Amount.Equal(dec("312.50")), "driver pay = %s", drafts[0].Amount)
	require.Equal(t, "Freight % (25%)", drafts[0].Description)

	require.Equal(t, ownerPayee, drafts[1].PayeeID)
	require.Equal(t, models.CategoryBasePay, drafts[1].Category)
	require.True(t, drafts[1].Amount.Equal(dec("687.50")), "owner pay = %s", drafts[1].Amount)

	require.Equal(t, ownerPayee, drafts[2].PayeeID)
	require.Equal(t, models.CategoryPassThrough, drafts[2].Category)
	require.True(t, drafts[2].Amount.Equal(dec("-312.50")))
	require.Equal(t, 0, drafts[2].PairIndex, "pass-through pairs with the driver base pay draft")

	totals := DesiredTotals(drafts)
	require.True(t, totals[driverPayee].Equal(dec("312.50")))
	require.True(t, totals[ownerPayee].Equal(dec("375.00")))

	sum := decimal.Zero
	for _, d := range drafts {
		sum = sum.Add(d.Amount)
	}
	require.True(t, sum.Equal(dec("687.50")), "pass-through transfers money, it does not create it")
}

func TestCalculateSingleDriverNoSplits(t *testing.T) {
	driverPayee := uuid.New()

	drafts := Calculate(Input{
		RateAmount:    dec("1000.00"),
		DriverPayeeID: &driverPayee,
		Profile: &Profile{
			PayType:    models.PayTypePercent,
			Rate:       dec("20"),
			DriverKind: models.CompanyDriver,
		},
	})

	require.Len(t, drafts, 1)
	require.Equal(t, models.CategoryBasePay, drafts[0].Category)
	require.True(t, drafts[0].Amount.Equal(dec("200.00")))

	totals := DesiredTotals(drafts)
	require.True(t, totals[driverPayee].Equal(dec("200.00")))
}

func TestCalculateNoLinkedPayee(t *testing.T) {
	drafts := Calculate(Input{
		RateAmount: dec("1000.00"),
		Profile: &Profile{
			PayType: models.PayTypePercent,
			Rate:    dec("20"),
		},
	})
	require.Empty(t, drafts)
}

func TestCalculatePayTypes(t *testing.T) {
	driverPayee := uuid.New()

	tests := []struct {
		name    string
		profile Profile
		input   Input
		want    string
		desc    string
	}{
		{
			name:    "per mile",
			profile: Profile{PayType: models.PayTypePerMile, Rate: dec("0.65"), DriverKind: models.OwnerOperator},
			input:   Input{RateAmount: dec("2000"), TotalMiles: dec("487")},
			want:    "316.55",
			desc:    "Per-mile (0.65 x 487 mi)",
		},
		{
			name:    "flat",
			profile: Profile{PayType: models.PayTypeFlat, Rate: dec("350"), DriverKind: models.OwnerOperator},
			input:   Input{RateAmount: dec("2000")},
			want:    "350",
			desc:    "Flat load rate",
		},
		{
			name:    "hourly",
			profile: Profile{PayType: models.PayTypeHourly, Rate: dec("28.50"), DriverKind: models.OwnerOperator},
			input:   Input{RateAmount: dec("2000"), LaborHours: dec("7.5")},
			want:    "213.75",
			desc:    "Hourly (28.5 x 7.5 hr)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			in.DriverPayeeID = &driverPayee
			profile := tt.profile
			in.Profile = &profile

			drafts := Calculate(in)
			require.Len(t, drafts, 1)
			require.True(t, drafts[0].Amount.Equal(dec(tt.want)), "got %s", drafts[0].Amount)
			require.Equal(t, tt.desc, drafts[0].Description)
		})
	}
}

// Rounding is standard half-up to cents: 1234.56 * 33% = 407.4048 -> 407.40,
// and the .005 boundary rounds away from zero.
func TestCalculateRounding(t *testing.T) {
	driverPayee := uuid.New()

	drafts := Calculate(Input{
		RateAmount:    dec("1234.56"),
		DriverPayeeID: &driverPayee,
		Profile:       &Profile{PayType: models.PayTypePercent, Rate: dec("33"), DriverKind: models.OwnerOperator},
	})
	require.Len(t, drafts, 1)
	require.True(t, drafts[0].Amount.Equal(dec("407.40")), "got %s", drafts[0].Amount)

	drafts = Calculate(Input{
		RateAmount:    dec("100.10"),
		DriverPayeeID: &driverPayee,
		Profile:       &Profile{PayType: models.PayTypePercent, Rate: dec("2.5"), DriverKind: models.OwnerOperator},
	})
	require.Len(t, drafts, 1)
	require.True(t, drafts[0].Amount.Equal(dec("2.50")), "2.5025 rounds to 2.50, got %s", drafts[0].Amount)
}

// Owner-operator wages are not passed through: the owner share stays whole.
func TestCalculateOwnerOperatorNoPassThrough(t *testing.T) {
	driverPayee := uuid.New()
	ownerPayee := uuid.New()

	drafts := Calculate(Input{
		RateAmount:    dec("1250.00"),
		DriverPayeeID: &driverPayee,
		Profile: &Profile{
			PayType:    models.PayTypePercent,
			Rate:       dec("25"),
			DriverKind: models.OwnerOperator,
		},
		AdditionalPayees: []AdditionalPayee{
			{PayeeID: ownerPayee, Percent: dec("55")},
		},
	})

	require.Len(t, drafts, 2)
	for _, d := range drafts {
		require.NotEqual(t, models.CategoryPassThrough, d.Category)
	}
}

func TestCalculateChargesAttachToDriver(t *testing.T) {
	driverPayee := uuid.New()
	ownerPayee := uuid.New()

	drafts := Calculate(Input{
		RateAmount:    dec("1000.00"),
		DriverPayeeID: &driverPayee,
		Profile:       &Profile{PayType: models.PayTypePercent, Rate: dec("20"), DriverKind: models.OwnerOperator},
		AdditionalPayees: []AdditionalPayee{
			{PayeeID: ownerPayee, Percent: dec("50")},
		},
		Charges: []Charge{
			{Kind: "detention", Description: "Detention 2hr", Amount: dec("75.00")},
			{Kind: "advance", Description: "Fuel advance", Amount: dec("-200.00")},
		},
	})

	require.Len(t, drafts, 4)
	require.Equal(t, models.ChargeCategory("detention"), drafts[2].Category)
	require.Equal(t, driverPayee, drafts[2].PayeeID)
	require.True(t, drafts[2].Amount.Equal(dec("75.00")))
	require.Equal(t, models.ChargeCategory("advance"), drafts[3].Category)
	require.Equal(t, driverPayee, drafts[3].PayeeID)
	require.True(t, drafts[3].Amount.Equal(dec("-200.00")))
}

// Same input, same output: the calculator is deterministic so the recalc
// full-regeneration path is idempotent.
func TestCalculateDeterministic(t *testing.T) {
	driverPayee := uuid.New()
	ownerPayee := uuid.New()

	in := Input{
		RateAmount:    dec("1250.00"),
		DriverPayeeID: &driverPayee,
		Profile: &Profile{
			PayType:    models.PayTypePercent,
			Rate:       dec("25"),
			DriverKind: models.CompanyDriver,
		},
		AdditionalPayees: []AdditionalPayee{
			{PayeeID: ownerPayee, Percent: dec("55")},
		},
		Charges: []Charge{{Kind: "detention", Description: "Detention", Amount: dec("75.00")}},
	}

	first := Calculate(in)
	second := Calculate(in)
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].PayeeID, second[i].PayeeID)
		require.Equal(t, first[i].Category, second[i].Category)
		require.Equal(t, first[i].Description, second[i].Description)
		require.True(t, first[i].Amount.Equal(second[i].Amount))
	}
}
