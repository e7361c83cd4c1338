package tax_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/tax"
)

func biweeklyCredit() tax.ContributionCredit {
	return tax.ContributionCredit{
		PayPeriods:          26,
		PayPeriodsRemaining: 26,
		ContributionMonths:  12,
		CPP:                 money("110.99"),
		EI:                  money("32.80"),
		AnnualizingFactor:   money("26"),
		PensionableEarnings: money("2000"),
		InsurableEarnings:   money("2000"),
	}
}

// =============================================================================
// TAXABLE INCOME
// =============================================================================

func TestAnnualTaxableIncome(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	a, negative, err := fed.AnnualTaxableIncome(biweeklyOntario(tax.ModePeriodic), money("18.65"))
	require.NoError(t, err)
	assertMoney(t, "51515.10", a)
	assert.False(t, negative)

	// Deductions larger than pay leave A negative and unclamped
	in := biweeklyOntario(tax.ModePeriodic)
	in.RegisteredPlanDeduction = money("3000")
	a, negative, err = fed.AnnualTaxableIncome(in, money("18.65"))
	require.NoError(t, err)
	assertMoney(t, "-26484.90", a)
	assert.True(t, negative)
}

func TestAnnualTaxableIncome_AnnualDeductionsProrated(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	in := biweeklyOntario(tax.ModePeriodic)
	in.PayPeriodsRemaining = 13
	in.AnnualDeductions = money("100")

	a, _, err := fed.AnnualTaxableIncome(in, money("18.65"))
	require.NoError(t, err)
	assertMoney(t, "51315.10", a, "F1 of 100 over 13 of 26 periods removes 200")
}

func TestGraduatedTaxableIncome(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	s1, err := tax.AnnualizingFactor(26, 2)
	require.NoError(t, err)
	assertMoney(t, "13", s1)

	in := biweeklyOntario(tax.ModeGraduated)
	in.CurrentPayPeriod = 2
	in.YTDNetIncome = money("1981.35")

	a, err := fed.GraduatedTaxableIncome(in, money("18.65"), s1)
	require.NoError(t, err)
	assertMoney(t, "51515.10", a)

	in.RegisteredPlanDeduction = money("5000")
	a, err = fed.GraduatedTaxableIncome(in, money("18.65"), s1)
	require.NoError(t, err)
	assertMoney(t, "0", a, "A_grad is floored at zero")
}

func TestAnnualizingFactor_Preconditions(t *testing.T) {
	_, err := tax.AnnualizingFactor(26, 0)
	assert.ErrorIs(t, err, tax.ErrUndefinedAnnualizingFactor)

	_, err = tax.AnnualizingFactor(0, 1)
	assert.ErrorIs(t, err, tax.ErrNonPositivePayPeriods)
}

// =============================================================================
// CREDIT CHAIN
// =============================================================================

func TestFederalCredits(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	assertMoney(t, "2419.35", fed.K1(money("16129")))
	assertMoney(t, "150", fed.K1(money("1000")))

	k3, err := fed.K3(26, 13, money("100"))
	require.NoError(t, err)
	assertMoney(t, "200", k3)

	assertMoney(t, "220.65", fed.K4(money("51515.10"), money("1471")))
	assertMoney(t, "150", fed.K4(money("1000"), money("1471")))
	assertMoney(t, "0", fed.K4(money("-1000"), money("1471")))
}

func TestK2_ModesAgreeOnSteadyPay(t *testing.T) {
	// GIVEN: An employee paid the same amount every period
	// WHEN: Computing K2 with each estimate of annual contributions
	// THEN: All three modes produce the same credit

	fed := tax.NewFederalEngine(params2025(t))

	for _, mode := range []tax.CalculationMode{tax.ModePeriodic, tax.ModeGraduated, tax.ModeYearToDate} {
		t.Run(string(mode), func(t *testing.T) {
			k2, err := fed.K2(mode, biweeklyCredit())
			require.NoError(t, err)
			assertMoney(t, "488.03", k2)
		})
	}
}

func TestK2_YearToDateMidYear(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	in := biweeklyCredit()
	in.PayPeriodsRemaining = 13
	in.YTDCPP = money("1442.87")
	in.YTDEI = money("426.40")

	k2, err := fed.K2(tax.ModeYearToDate, in)
	require.NoError(t, err)
	assertMoney(t, "488.03", k2)
}

func TestK2_CapsContributionsNotCredit(t *testing.T) {
	// GIVEN: Pay high enough that annualized CPP and EI exceed the maxima
	// WHEN: Computing K2
	// THEN: The credit is the lowest rate times the capped contributions

	fed := tax.NewFederalEngine(params2025(t))

	in := biweeklyCredit()
	in.CPP = money("586.99")
	in.EI = money("164.00")
	in.PensionableEarnings = money("10000")
	in.InsurableEarnings = money("10000")

	for _, mode := range []tax.CalculationMode{tax.ModePeriodic, tax.ModeGraduated, tax.ModeYearToDate} {
		k2, err := fed.K2(mode, in)
		require.NoError(t, err)
		assertMoney(t, "665.04", k2, "mode %s", mode) // 0.15 x (3356.10 + 1077.48)
	}
}

func TestK2_PartialYearDropsCPPCredit(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	in := biweeklyCredit()
	in.ContributionMonths = 6

	k2, err := fed.K2(tax.ModePeriodic, in)
	require.NoError(t, err)
	assertMoney(t, "127.92", k2, "only the EI part remains")
}

func TestK2_InvalidMode(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	_, err := fed.K2(tax.CalculationMode("weekly"), biweeklyCredit())
	assert.ErrorIs(t, err, tax.ErrInvalidMode)
}

// =============================================================================
// BRACKETS, T3, LCF, T1
// =============================================================================

func TestFederalRate(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	tests := []struct {
		a string
		r string
		k string
	}{
		{"0", "0.15", "0"},
		{"51515.10", "0.15", "0"},
		{"57375", "0.205", "3156"},
		{"114750", "0.26", "9467"},
		{"200000", "0.29", "14803"},
		{"300000", "0.33", "24940"},
	}

	for _, tt := range tests {
		r, k := fed.Rate(money(tt.a))
		assert.True(t, money(tt.r).Equal(r), "R at %s: %s", tt.a, r)
		assert.True(t, money(tt.k).Equal(k), "K at %s: %s", tt.a, k)
	}
}

func TestT3(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	t3 := fed.T3(money("51515.10"), money("2419.35"), money("488.03"), money("0"), money("220.65"))
	assertMoney(t, "4599.24", t3)

	t3 = fed.T3(money("10000"), money("2419.35"), money("102.52"), money("0"), money("220.65"))
	assertMoney(t, "0", t3, "credits above tax saturate at zero")
}

func TestLCF(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	assertMoney(t, "4000", fed.LCF(money("4000")), "below the cap the acquisition amount is returned")
	assertMoney(t, "750", fed.LCF(money("5000")), "credit equal to the cap")
	assertMoney(t, "750", fed.LCF(money("6000")))
	assertMoney(t, "0", fed.LCF(money("0")))
}

func TestT1(t *testing.T) {
	fed := tax.NewFederalEngine(params2025(t))

	assertMoney(t, "4599.24", fed.T1(money("4599.24"), 26, money("0"), false))
	assertMoney(t, "6806.88", fed.T1(money("4599.24"), 26, money("0"), true), "48% surtax outside Canada")
	assertMoney(t, "0", fed.T1(money("4599.24"), 26, money("200"), false), "P x LCF exceeds tax")
	assertMoney(t, "4499.24", fed.T1Graduated(money("4599.24"), money("100"), false))
}
