// Package paycalc computes the candidate ledger lines for a load. It is a
// pure function over the load's financial state and the driver's pay
// configuration: no I/O, fully deterministic, every monetary result rounded
// to 2 decimal places.
package paycalc

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fleetops/services/payroll/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// Charge is a load charge as seen by the calculator.
type Charge struct {
	Kind        string
	Description string
	Amount      decimal.Decimal
}

// Profile is the driver's active pay profile.
type Profile struct {
	PayType    models.PayType
	Rate       decimal.Decimal
	DriverKind models.DriverKind
}

// AdditionalPayee is a secondary payee's share configuration. Only active
// shares are passed in.
type AdditionalPayee struct {
	PayeeID uuid.UUID
	Percent decimal.Decimal
}

// Input is everything the calculator needs about one load.
type Input struct {
	RateAmount       decimal.Decimal
	TotalMiles       decimal.Decimal
	LaborHours       decimal.Decimal
	Charges          []Charge
	DriverPayeeID    *uuid.UUID
	Profile          *Profile
	AdditionalPayees []AdditionalPayee
}

// Draft is one candidate ledger line. PairIndex points at the draft this
// pass-through deduction transfers from (-1 when unpaired), so the store can
// link the pair explicitly on insert.
type Draft struct {
	PayeeID     uuid.UUID
	Category    models.LineCategory
	Description string
	Amount      decimal.Decimal
	PairIndex   int
}

// Calculate produces the ordered list of ledger-line drafts for a load.
// Returns nil when the driver has no linked payee (nothing is payable).
func Calculate(in Input) []Draft {
	if in.DriverPayeeID == nil {
		return nil
	}
	driverPayee := *in.DriverPayeeID

	var drafts []Draft
	driverPay := decimal.Zero
	driverPayIndex := -1

	if in.Profile != nil {
		var desc string
		switch in.Profile.PayType {
		case models.PayTypePercent:
			driverPay = round2(in.RateAmount.Mul(in.Profile.Rate).Div(oneHundred))
			desc = fmt.Sprintf("Freight %% (%s%%)", in.Profile.Rate.String())
		case models.PayTypePerMile:
			driverPay = round2(in.Profile.Rate.Mul(in.TotalMiles))
			desc = fmt.Sprintf("Per-mile (%s x %s mi)", in.Profile.Rate.String(), in.TotalMiles.String())
		case models.PayTypeFlat:
			driverPay = round2(in.Profile.Rate)
			desc = "Flat load rate"
		case models.PayTypeHourly:
			driverPay = round2(in.Profile.Rate.Mul(in.LaborHours))
			desc = fmt.Sprintf("Hourly (%s x %s hr)", in.Profile.Rate.String(), in.LaborHours.String())
		}
		if !driverPay.IsZero() {
			driverPayIndex = len(drafts)
			drafts = append(drafts, Draft{
				PayeeID:     driverPayee,
				Category:    models.CategoryBasePay,
				Description: desc,
				Amount:      driverPay,
				PairIndex:   -1,
			})
		}
	}

	for _, ap := range in.AdditionalPayees {
		ownerPay := round2(in.RateAmount.Mul(ap.Percent).Div(oneHundred))
		drafts = append(drafts, Draft{
			PayeeID:     ap.PayeeID,
			Category:    models.CategoryBasePay,
			Description: fmt.Sprintf("OP net freight (%s%%)", ap.Percent.String()),
			Amount:      ownerPay,
			PairIndex:   -1,
		})
	}

	// A company driver's wage is funded out of each owner's share rather
	// than being a separate carrier expense.
	if in.Profile != nil && in.Profile.DriverKind == models.CompanyDriver && driverPay.IsPositive() {
		for _, ap := range in.AdditionalPayees {
			drafts = append(drafts, Draft{
				PayeeID:     ap.PayeeID,
				Category:    models.CategoryPassThrough,
				Description: "Company driver wages pass-through",
				Amount:      driverPay.Neg(),
				PairIndex:   driverPayIndex,
			})
		}
	}

	// Charges attach to the assigned driver's account verbatim, regardless
	// of payee splits.
	for _, ch := range in.Charges {
		drafts = append(drafts, Draft{
			PayeeID:     driverPayee,
			Category:    models.ChargeCategory(ch.Kind),
			Description: ch.Description,
			Amount:      round2(ch.Amount),
			PairIndex:   -1,
		})
	}

	return drafts
}

// DesiredTotals folds drafts into the desired total per payee.
func DesiredTotals(drafts []Draft) map[uuid.UUID]decimal.Decimal {
	totals := make(map[uuid.UUID]decimal.Decimal, len(drafts))
	for _, d := range drafts {
		totals[d.PayeeID] = totals[d.PayeeID].Add(d.Amount)
	}
	return totals
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
