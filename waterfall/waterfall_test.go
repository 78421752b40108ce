package waterfall_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/waterfall"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func defaultAllocator(t *testing.T) *waterfall.Allocator {
	t.Helper()
	alloc, err := waterfall.NewAllocator(waterfall.DefaultSteps())
	require.NoError(t, err)
	return alloc
}

func standardOutstanding() waterfall.Outstanding {
	return waterfall.Outstanding{
		waterfall.CategoryFees:      loan.MustMoney("50"),
		waterfall.CategoryPenalties: loan.MustMoney("25"),
		waterfall.CategoryInterest:  loan.MustMoney("500"),
		waterfall.CategoryPrincipal: loan.MustMoney("100000"),
		waterfall.CategoryEscrow:    loan.MustMoney("300"),
	}
}

// =============================================================================
// ALLOCATION
// =============================================================================

func TestApply_StandardServicingOrder(t *testing.T) {
	// GIVEN: A 1000 payment against all five buckets
	// WHEN: The default order runs fees, penalties, interest, principal, escrow
	// THEN: The first three drain fully, principal takes the remaining 425,
	//       and escrow gets nothing
	alloc := defaultAllocator(t)

	res, err := alloc.Apply(loan.MustMoney("1000"), standardOutstanding())
	require.NoError(t, err)

	assert.Equal(t, "50.00", res.Applied[waterfall.CategoryFees].StringFixed(2))
	assert.Equal(t, "25.00", res.Applied[waterfall.CategoryPenalties].StringFixed(2))
	assert.Equal(t, "500.00", res.Applied[waterfall.CategoryInterest].StringFixed(2))
	assert.Equal(t, "425.00", res.Applied[waterfall.CategoryPrincipal].StringFixed(2))
	assert.Equal(t, "0.00", res.Applied[waterfall.CategoryEscrow].StringFixed(2))
	assert.True(t, res.RemainingPayment.IsZero(), "the payment should be fully consumed")
}

func TestApply_StepOrderDecidesWhoGetsStarved(t *testing.T) {
	// GIVEN: A 500 payment that cannot cover fees, penalties and interest
	// WHEN: The same buckets run under the default order and interest-first
	// THEN: The two orders starve different buckets
	interestFirst, err := waterfall.NewAllocator([]waterfall.Step{
		{Category: waterfall.CategoryInterest, PercentageCap: loan.Hundred},
		{Category: waterfall.CategoryFees, PercentageCap: loan.Hundred},
		{Category: waterfall.CategoryPenalties, PercentageCap: loan.Hundred},
		{Category: waterfall.CategoryPrincipal, PercentageCap: loan.Hundred},
		{Category: waterfall.CategoryEscrow, PercentageCap: loan.Hundred},
	})
	require.NoError(t, err)

	standard, err := defaultAllocator(t).Apply(loan.MustMoney("500"), standardOutstanding())
	require.NoError(t, err)
	flipped, err := interestFirst.Apply(loan.MustMoney("500"), standardOutstanding())
	require.NoError(t, err)

	// Fees-first pays fees and penalties in full, leaving interest short.
	assert.Equal(t, "50.00", standard.Applied[waterfall.CategoryFees].StringFixed(2))
	assert.Equal(t, "425.00", standard.Applied[waterfall.CategoryInterest].StringFixed(2))

	// Interest-first consumes the whole payment before fees see a cent.
	assert.Equal(t, "500.00", flipped.Applied[waterfall.CategoryInterest].StringFixed(2))
	assert.True(t, flipped.Applied[waterfall.CategoryFees].IsZero())

	assert.True(t, standard.RemainingPayment.IsZero())
	assert.True(t, flipped.RemainingPayment.IsZero())
}

func TestApply_ConservationHoldsExactly(t *testing.T) {
	alloc := defaultAllocator(t)

	for _, payment := range []string{"0", "0.01", "74.99", "575", "1000", "123456.78"} {
		res, err := alloc.Apply(loan.MustMoney(payment), standardOutstanding())
		require.NoError(t, err, "payment %s", payment)

		total := res.TotalApplied().Add(res.RemainingPayment)
		assert.True(t, total.Equal(loan.MustMoney(payment)),
			"payment %s: applied %s + remaining %s must equal the payment",
			payment, res.TotalApplied(), res.RemainingPayment)
	}
}

func TestApply_NeverExceedsOutstanding(t *testing.T) {
	alloc := defaultAllocator(t)
	outstanding := standardOutstanding()

	res, err := alloc.Apply(loan.MustMoney("500000"), outstanding)
	require.NoError(t, err)

	for category, amount := range res.Applied {
		assert.True(t, amount.LessThanOrEqual(outstanding[category]),
			"%s: applied %s exceeds outstanding %s", category, amount, outstanding[category])
	}
	// Everything owed is covered; the rest comes back as surplus.
	assert.True(t, res.TotalApplied().Equal(outstanding.Total()))
	want := loan.MustMoney("500000").Sub(outstanding.Total())
	assert.True(t, res.RemainingPayment.Equal(want),
		"expected surplus %s, got %s", want, res.RemainingPayment)
}

func TestApply_EveryStepReportsEvenWhenStarved(t *testing.T) {
	// A payment that dies in the first bucket still yields an entry per
	// configured step, so downstream consumers see explicit zeros.
	alloc := defaultAllocator(t)

	res, err := alloc.Apply(loan.MustMoney("10"), standardOutstanding())
	require.NoError(t, err)

	assert.Len(t, res.Applied, 5)
	assert.Equal(t, "10.00", res.Applied[waterfall.CategoryFees].StringFixed(2))
	for _, category := range []waterfall.Category{
		waterfall.CategoryPenalties,
		waterfall.CategoryInterest,
		waterfall.CategoryPrincipal,
		waterfall.CategoryEscrow,
	} {
		assert.True(t, res.Applied[category].IsZero(), "%s should be zero", category)
	}
}

func TestApply_MissingBucketTreatedAsZero(t *testing.T) {
	alloc := defaultAllocator(t)

	res, err := alloc.Apply(loan.MustMoney("1000"), waterfall.Outstanding{
		waterfall.CategoryInterest: loan.MustMoney("500"),
	})
	require.NoError(t, err)

	assert.True(t, res.Applied[waterfall.CategoryFees].IsZero())
	assert.Equal(t, "500.00", res.Applied[waterfall.CategoryInterest].StringFixed(2))
	assert.Equal(t, "500.00", res.RemainingPayment.StringFixed(2))
}

func TestApply_PercentageCapLimitsAStep(t *testing.T) {
	// GIVEN: Principal capped at half the remaining payment
	// THEN : The cap binds before the outstanding amount does
	alloc, err := waterfall.NewAllocator([]waterfall.Step{
		{Category: waterfall.CategoryPrincipal, PercentageCap: decimal.NewFromInt(50)},
		{Category: waterfall.CategoryInterest, PercentageCap: loan.Hundred},
	})
	require.NoError(t, err)

	res, err := alloc.Apply(loan.MustMoney("1000"), waterfall.Outstanding{
		waterfall.CategoryPrincipal: loan.MustMoney("10000"),
		waterfall.CategoryInterest:  loan.MustMoney("10000"),
	})
	require.NoError(t, err)

	assert.Equal(t, "500.00", res.Applied[waterfall.CategoryPrincipal].StringFixed(2))
	assert.Equal(t, "500.00", res.Applied[waterfall.CategoryInterest].StringFixed(2))
	assert.True(t, res.RemainingPayment.IsZero())
}

func TestApply_CapRoundsDownToCents(t *testing.T) {
	// Half of 100.01 is 50.005; the cap term truncates to 50.00 so the
	// step can never take more than its percentage.
	alloc, err := waterfall.NewAllocator([]waterfall.Step{
		{Category: waterfall.CategoryPrincipal, PercentageCap: decimal.NewFromInt(50)},
		{Category: waterfall.CategoryInterest, PercentageCap: loan.Hundred},
	})
	require.NoError(t, err)

	res, err := alloc.Apply(loan.MustMoney("100.01"), waterfall.Outstanding{
		waterfall.CategoryPrincipal: loan.MustMoney("1000"),
		waterfall.CategoryInterest:  loan.MustMoney("1000"),
	})
	require.NoError(t, err)

	assert.Equal(t, "50.00", res.Applied[waterfall.CategoryPrincipal].StringFixed(2))
	assert.Equal(t, "50.01", res.Applied[waterfall.CategoryInterest].StringFixed(2))
	assert.True(t, res.RemainingPayment.IsZero())
}

func TestApply_ZeroCapStepTakesNothing(t *testing.T) {
	alloc, err := waterfall.NewAllocator([]waterfall.Step{
		{Category: waterfall.CategoryFees, PercentageCap: decimal.Zero},
		{Category: waterfall.CategoryInterest, PercentageCap: loan.Hundred},
	})
	require.NoError(t, err)

	res, err := alloc.Apply(loan.MustMoney("100"), waterfall.Outstanding{
		waterfall.CategoryFees:     loan.MustMoney("50"),
		waterfall.CategoryInterest: loan.MustMoney("500"),
	})
	require.NoError(t, err)

	assert.True(t, res.Applied[waterfall.CategoryFees].IsZero())
	assert.Equal(t, "100.00", res.Applied[waterfall.CategoryInterest].StringFixed(2))
}

func TestApply_ZeroPaymentAllocatesNothing(t *testing.T) {
	alloc := defaultAllocator(t)

	res, err := alloc.Apply(decimal.Zero, standardOutstanding())
	require.NoError(t, err)

	assert.True(t, res.TotalApplied().IsZero())
	assert.True(t, res.RemainingPayment.IsZero())
	assert.Len(t, res.Applied, 5)
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

func TestApply_RejectsNegativeInputs(t *testing.T) {
	alloc := defaultAllocator(t)

	_, err := alloc.Apply(loan.MustMoney("-1"), standardOutstanding())
	var fe *loan.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "paymentAmount", fe.Field)
	assert.Equal(t, "negative", fe.Code)

	_, err = alloc.Apply(loan.MustMoney("100"), waterfall.Outstanding{
		waterfall.CategoryFees: loan.MustMoney("-50"),
	})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "outstanding.fees", fe.Field)
	assert.Equal(t, "negative", fe.Code)
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewAllocator_ValidatesSteps(t *testing.T) {
	cases := []struct {
		name  string
		steps []waterfall.Step
		field string
		code  string
	}{
		{
			name:  "empty",
			steps: nil,
			field: "steps", code: "empty",
		},
		{
			name: "unknown category",
			steps: []waterfall.Step{
				{Category: waterfall.Category("misc"), PercentageCap: loan.Hundred},
			},
			field: "steps[0].category", code: "unknown_category",
		},
		{
			name: "duplicate category",
			steps: []waterfall.Step{
				{Category: waterfall.CategoryFees, PercentageCap: loan.Hundred},
				{Category: waterfall.CategoryFees, PercentageCap: loan.Hundred},
			},
			field: "steps[1].category", code: "duplicate",
		},
		{
			name: "cap above 100",
			steps: []waterfall.Step{
				{Category: waterfall.CategoryFees, PercentageCap: decimal.NewFromInt(101)},
			},
			field: "steps[0].percentageCap", code: "out_of_range",
		},
		{
			name: "negative cap",
			steps: []waterfall.Step{
				{Category: waterfall.CategoryFees, PercentageCap: decimal.NewFromInt(-1)},
			},
			field: "steps[0].percentageCap", code: "out_of_range",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := waterfall.NewAllocator(tc.steps)
			var fe *loan.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.field, fe.Field)
			assert.Equal(t, tc.code, fe.Code)
		})
	}
}

func TestAllocator_StepsReturnsACopy(t *testing.T) {
	alloc := defaultAllocator(t)

	steps := alloc.Steps()
	require.Len(t, steps, 5)
	steps[0].Category = waterfall.CategoryEscrow

	assert.Equal(t, waterfall.CategoryFees, alloc.Steps()[0].Category,
		"mutating the returned slice must not reorder the allocator")
}

func TestValidCategory(t *testing.T) {
	for _, c := range waterfall.Categories() {
		assert.True(t, waterfall.ValidCategory(c), "%s should be valid", c)
	}
	assert.False(t, waterfall.ValidCategory(waterfall.Category("misc")))
	assert.False(t, waterfall.ValidCategory(waterfall.Category("")))
}
