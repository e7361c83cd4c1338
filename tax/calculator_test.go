package tax_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/tax"
)

func newCalculator(t *testing.T) *tax.Calculator {
	t.Helper()
	return tax.NewCalculator(params2025(t))
}

// =============================================================================
// FULL PIPELINE
// =============================================================================

func TestCalculate_PeriodicOntario(t *testing.T) {
	// GIVEN: A biweekly Ontario employee earning 2000 with default claims
	// WHEN: Computing periodic withholding
	// THEN: Every published factor matches the hand-worked example

	calc := newCalculator(t)

	result, err := calc.Calculate(biweeklyOntario(tax.ModePeriodic))
	require.NoError(t, err)

	f := result.Factors
	assertMoney(t, "110.99", f.CPP, "C")
	assertMoney(t, "71300", f.CPP2Baseline, "W")
	assertMoney(t, "0", f.CPP2, "C2")
	assertMoney(t, "32.80", f.EI, "EI")
	assertMoney(t, "18.65", f.EnhancedCPP, "F5")
	assertMoney(t, "18.65", f.EnhancedCPPShare, "F5A")
	assertMoney(t, "51515.10", f.TaxableIncome, "A")
	assertMoney(t, "16129", f.BasicPersonal, "BPAF")
	assertMoney(t, "2419.35", f.K1, "K1")
	assertMoney(t, "488.03", f.K2, "K2")
	assertMoney(t, "0", f.K3, "K3")
	assertMoney(t, "220.65", f.K4, "K4")
	assertMoney(t, "4599.24", f.T3, "T3")
	assertMoney(t, "0", f.LCF, "LCF")
	assertMoney(t, "643.72", f.K1P, "K1P")
	assertMoney(t, "164.30", f.K2P, "K2P")
	assertMoney(t, "1793.49", f.T4, "T4")
	assertMoney(t, "0", f.V1, "V1")
	assertMoney(t, "600", f.V2, "V2")
	assertMoney(t, "0", f.S, "S")

	assert.Equal(t, 2025, result.Year)
	assert.Equal(t, "emp-1", result.EmployeeID)
	assert.Equal(t, tax.ModePeriodic, result.Mode)
	assertMoney(t, "4599.24", result.AnnualFederal, "T1")
	assertMoney(t, "2393.49", result.AnnualProvincial, "T2")
	assertMoney(t, "268.95", result.Tax, "T")
	assert.False(t, result.FloorOverride)
	assertMoney(t, "412.74", result.TotalDeductions())
}

func TestCalculate_EmptyModeIsPeriodic(t *testing.T) {
	calc := newCalculator(t)

	result, err := calc.Calculate(biweeklyOntario(""))
	require.NoError(t, err)
	assert.Equal(t, tax.ModePeriodic, result.Mode)
	assertMoney(t, "268.95", result.Tax)
}

func TestCalculate_ModesAgreeOnFirstPeriod(t *testing.T) {
	// GIVEN: The first pay period of the year, nothing year-to-date
	// WHEN: Computing with each calculation mode
	// THEN: All three withhold the same amount

	calc := newCalculator(t)

	for _, mode := range []tax.CalculationMode{tax.ModePeriodic, tax.ModeGraduated, tax.ModeYearToDate} {
		t.Run(string(mode), func(t *testing.T) {
			result, err := calc.Calculate(biweeklyOntario(mode))
			require.NoError(t, err)
			assert.Equal(t, mode, result.Mode)
			assertMoney(t, "488.03", result.Factors.K2)
			assertMoney(t, "164.30", result.Factors.K2P)
			assertMoney(t, "268.95", result.Tax)
		})
	}
}

func TestCalculate_GraduatedSecondPeriod(t *testing.T) {
	// GIVEN: Period 2 of 26 after withholding 268.95 on identical pay
	// WHEN: Computing with cumulative averaging
	// THEN: The withholding stays at 268.95

	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModeGraduated)
	in.CurrentPayPeriod = 2
	in.PayPeriodsRemaining = 25
	in.YTDNetIncome = money("1981.35")
	in.YTDPensionableEarnings = money("2000")
	in.YTDInsurableEarnings = money("2000")
	in.YTDCPP = money("110.99")
	in.YTDEI = money("32.80")
	in.YTDTax = money("268.95")

	result, err := calc.Calculate(in)
	require.NoError(t, err)

	assertMoney(t, "13", result.Factors.AnnualizingFactor, "S1")
	assertMoney(t, "51515.10", result.Factors.TaxableIncome)
	assertMoney(t, "268.95", result.Tax)
}

func TestCalculate_GraduatedProvincialLabourCredit(t *testing.T) {
	// GIVEN: An Ontario labour credit of 5% capped at 1000 and a 100 acquisition
	// WHEN: Computing in graduated mode
	// THEN: T2 still subtracts P x LCP, like every other mode

	p := params2025(t)
	on := p.Provinces[tax.Ontario]
	on.LabourCredit = tax.LabourCreditParameters{Rate: money("0.05"), Cap: money("1000")}
	p.Provinces[tax.Ontario] = on
	calc := tax.NewCalculator(p)

	in := biweeklyOntario(tax.ModeGraduated)
	in.ProvincialLabourFundAcquisition = money("100")

	result, err := calc.Calculate(in)
	require.NoError(t, err)

	f := result.Factors
	assertMoney(t, "5", f.LCP)
	assertMoney(t, "1793.49", f.T4)
	assertMoney(t, "600", f.V2)
	assertMoney(t, "2263.49", result.AnnualProvincial, "1793.49 + 600 - 26 x 5")

	periodic := in
	periodic.Mode = tax.ModePeriodic
	pr, err := calc.Calculate(periodic)
	require.NoError(t, err)
	assertMoney(t, "2263.49", pr.AnnualProvincial)
}

func TestCalculate_NonPeriodicTax(t *testing.T) {
	// GIVEN: A graduated pay period with a 5000 bonus
	// WHEN: Computing it
	// THEN: The bonus's share of the withholding is reported separately

	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModeGraduated)
	in.Bonus = money("5000")
	in.PensionableEarnings = money("7000")
	in.InsurableEarnings = money("7000")

	withBonus, err := calc.Calculate(in)
	require.NoError(t, err)

	in.Bonus = money("0")
	without, err := calc.Calculate(in)
	require.NoError(t, err)

	assert.True(t, withBonus.NonPeriodicTax.IsPositive())
	assertMoney(t, withBonus.Tax.Sub(without.Tax).String(), withBonus.NonPeriodicTax)
	assert.True(t, without.NonPeriodicTax.IsZero())

	plain, err := calc.Calculate(biweeklyOntario(tax.ModeGraduated))
	require.NoError(t, err)
	assertMoney(t, "1981.35", plain.Factors.PeriodicNetIncome, "I - F5A")
}

func TestCalculate_GraduatedNeverBelowAdditionalTax(t *testing.T) {
	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModeGraduated)
	in.YTDTax = money("10000")
	in.AdditionalTax = money("25")

	result, err := calc.Calculate(in)
	require.NoError(t, err)
	assertMoney(t, "50", result.Tax, "max(L, negative) + L")
}

func TestCalculate_HighIncome(t *testing.T) {
	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModePeriodic)
	in.Gross = money("10000")
	in.PensionableEarnings = money("10000")
	in.InsurableEarnings = money("10000")

	result, err := calc.Calculate(in)
	require.NoError(t, err)

	f := result.Factors
	assertMoney(t, "586.99", f.CPP)
	assertMoney(t, "164.00", f.EI)
	assertMoney(t, "257435.10", f.TaxableIncome)
	assertMoney(t, "14538", f.BasicPersonal)
	assertMoney(t, "665.04", f.K2)
	assertMoney(t, "56947.19", f.T3)
	assertMoney(t, "25016.84", f.T4)
	assertMoney(t, "10236.91", f.V1)
	assertMoney(t, "900", f.V2)
	assertMoney(t, "36153.75", result.AnnualProvincial)
	assertMoney(t, "3580.81", result.Tax)
}

func TestCalculate_LowIncomeWithholdsNothing(t *testing.T) {
	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModePeriodic)
	in.Gross = money("500")
	in.PensionableEarnings = money("500")
	in.InsurableEarnings = money("500")

	result, err := calc.Calculate(in)
	require.NoError(t, err)
	assertMoney(t, "21.74", result.CPP)
	assertMoney(t, "8.20", result.EI)
	assertMoney(t, "0", result.AnnualFederal)
	assertMoney(t, "0", result.AnnualProvincial)
	assertMoney(t, "0", result.Tax)
}

func TestCalculate_ContributionsCappedYearToDate(t *testing.T) {
	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModePeriodic)
	in.YTDCPP = money("4034.10")
	in.YTDEI = money("1077.48")

	result, err := calc.Calculate(in)
	require.NoError(t, err)
	assertMoney(t, "0", result.CPP)
	assertMoney(t, "0", result.EI)
	assertMoney(t, "52000", result.Factors.TaxableIncome)
	assertMoney(t, "297.78", result.Tax)
}

func TestCalculate_OutsideCanadaSurtax(t *testing.T) {
	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModePeriodic)
	in.OutsideCanada = true

	result, err := calc.Calculate(in)
	require.NoError(t, err)
	assertMoney(t, "6806.88", result.AnnualFederal)
	assertMoney(t, "353.86", result.Tax)
}

func TestCalculate_AdditionalTaxAdded(t *testing.T) {
	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModePeriodic)
	in.AdditionalTax = money("10")

	result, err := calc.Calculate(in)
	require.NoError(t, err)
	assertMoney(t, "278.95", result.Tax)
}

func TestCalculate_NegativeIncomeWithholdsAdditionalTax(t *testing.T) {
	// GIVEN: Deductions larger than pay, so annual taxable income is negative
	// WHEN: Computing periodic withholding
	// THEN: Exactly L is withheld and the override is flagged

	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModePeriodic)
	in.Gross = money("100")
	in.PensionableEarnings = money("100")
	in.InsurableEarnings = money("100")
	in.RegisteredPlanDeduction = money("500")
	in.AdditionalTax = money("25")

	result, err := calc.Calculate(in)
	require.NoError(t, err)
	assert.True(t, result.FloorOverride)
	assert.True(t, result.Factors.TaxableIncomeBelow)
	assertMoney(t, "25", result.Tax)
	assertMoney(t, "0", result.AnnualFederal)
	assertMoney(t, "0", result.AnnualProvincial)
}

func TestCalculate_NonNegativeEverywhere(t *testing.T) {
	calc := newCalculator(t)

	for _, gross := range []string{"0.01", "50", "300", "1000", "2000", "5000", "9000", "20000"} {
		for _, mode := range []tax.CalculationMode{tax.ModePeriodic, tax.ModeGraduated, tax.ModeYearToDate} {
			in := biweeklyOntario(mode)
			in.Gross = money(gross)
			in.PensionableEarnings = money(gross)
			in.InsurableEarnings = money(gross)

			result, err := calc.Calculate(in)
			require.NoError(t, err, "gross %s mode %s", gross, mode)

			for name, v := range map[string]interface{ IsNegative() bool }{
				"tax": result.Tax, "cpp": result.CPP, "cpp2": result.CPP2, "ei": result.EI,
				"t1": result.AnnualFederal, "t2": result.AnnualProvincial,
				"k2": result.Factors.K2, "t3": result.Factors.T3, "t4": result.Factors.T4,
			} {
				assert.False(t, v.IsNegative(), "%s negative at gross %s mode %s", name, gross, mode)
			}
		}
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	calc := newCalculator(t)
	in := biweeklyOntario(tax.ModePeriodic)

	first, err := calc.Calculate(in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, err := calc.Calculate(in)
			assert.NoError(t, err)
			assert.Equal(t, first.Tax.String(), again.Tax.String())
		}()
	}
	wg.Wait()
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func TestCalculate_Preconditions(t *testing.T) {
	calc := newCalculator(t)

	tests := []struct {
		name   string
		mutate func(*tax.PayPeriodInputs)
		want   error
	}{
		{"zero pay periods", func(in *tax.PayPeriodInputs) { in.PayPeriods = 0 }, tax.ErrNonPositivePayPeriods},
		{"zero remaining periods", func(in *tax.PayPeriodInputs) { in.PayPeriodsRemaining = 0 }, tax.ErrNonPositiveRemainingPeriods},
		{"contribution months above 12", func(in *tax.PayPeriodInputs) { in.ContributionMonths = 13 }, tax.ErrContributionMonthsOutOfRange},
		{"graduated without current period", func(in *tax.PayPeriodInputs) {
			in.Mode = tax.ModeGraduated
			in.CurrentPayPeriod = 0
		}, tax.ErrUndefinedAnnualizingFactor},
		{"unknown mode", func(in *tax.PayPeriodInputs) { in.Mode = "weekly" }, tax.ErrInvalidMode},
		{"quebec", func(in *tax.PayPeriodInputs) { in.Jurisdiction = tax.Quebec }, tax.ErrUnknownJurisdiction},
		{"no table for province", func(in *tax.PayPeriodInputs) { in.Jurisdiction = tax.Manitoba }, tax.ErrUnknownJurisdiction},
		{"negative other federal credits", func(in *tax.PayPeriodInputs) { in.OtherFederalCredits = money("-500") }, tax.ErrNegativeInput},
		{"negative other provincial credits", func(in *tax.PayPeriodInputs) { in.OtherProvincialCredits = money("-500") }, tax.ErrNegativeInput},
		{"negative additional tax", func(in *tax.PayPeriodInputs) { in.AdditionalTax = money("-50") }, tax.ErrNegativeInput},
		{"negative gross", func(in *tax.PayPeriodInputs) { in.Gross = money("-1") }, tax.ErrNegativeInput},
		{"negative union dues", func(in *tax.PayPeriodInputs) { in.UnionDues = money("-10") }, tax.ErrNegativeInput},
		{"negative federal claim", func(in *tax.PayPeriodInputs) { in.FederalClaim = money("-16129") }, tax.ErrNegativeInput},
		{"negative labour fund acquisition", func(in *tax.PayPeriodInputs) { in.LabourFundAcquisition = money("-100") }, tax.ErrNegativeInput},
		{"negative year-to-date tax", func(in *tax.PayPeriodInputs) { in.YTDTax = money("-268.95") }, tax.ErrNegativeInput},
		{"negative year-to-date CPP", func(in *tax.PayPeriodInputs) { in.YTDCPP = money("-1") }, tax.ErrNegativeInput},
		{"negative disabled dependants", func(in *tax.PayPeriodInputs) { in.DisabledDependants = -1 }, tax.ErrNegativeInput},
		{"negative minor dependants", func(in *tax.PayPeriodInputs) { in.MinorDependants = -2 }, tax.ErrNegativeInput},
		{"no pensionable earnings this period", func(in *tax.PayPeriodInputs) {
			in.YTDPensionableEarnings = money("80000")
			in.PensionableEarnings = money("0")
			in.Gross = money("2000")
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := biweeklyOntario(tax.ModePeriodic)
			tt.mutate(&in)

			_, err := calc.Calculate(in)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, tax.IsPreconditionError(err))
		})
	}
}

func TestCalculate_DomainErrorAtUpperThreshold(t *testing.T) {
	// GIVEN: Pay that annualizes to exactly the BPA upper threshold
	// WHEN: The federal claim defaults to BPAF
	// THEN: The domain error surfaces; supplying a claim avoids it

	calc := newCalculator(t)

	in := biweeklyOntario(tax.ModePeriodic)
	in.PayPeriods = 1
	in.PayPeriodsRemaining = 1
	in.Gross = money("253414")
	in.PensionableEarnings = money("0")
	in.InsurableEarnings = money("0")

	_, err := calc.Calculate(in)
	require.Error(t, err)
	assert.True(t, tax.IsDomainError(err))

	in.FederalClaim = money("16129")
	_, err = calc.Calculate(in)
	assert.NoError(t, err)
}

// =============================================================================
// BATCH
// =============================================================================

func TestCalculateBatch_PreservesOrder(t *testing.T) {
	calc := newCalculator(t)

	var inputs []tax.PayPeriodInputs
	for i := 0; i < 50; i++ {
		in := biweeklyOntario(tax.ModePeriodic)
		in.EmployeeID = fmt.Sprintf("emp-%02d", i)
		in.Gross = money("1000").Add(money("100").Mul(money(fmt.Sprint(i))))
		in.PensionableEarnings = in.Gross
		in.InsurableEarnings = in.Gross
		inputs = append(inputs, in)
	}

	results, err := calc.CalculateBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, len(inputs))

	for i, r := range results {
		assert.Equal(t, inputs[i].EmployeeID, r.EmployeeID)

		single, err := calc.Calculate(inputs[i])
		require.NoError(t, err)
		assert.True(t, single.Tax.Equal(r.Tax), "batch and single differ for %s", r.EmployeeID)
	}
}

func TestCalculateBatch_ReportsFailingItem(t *testing.T) {
	calc := newCalculator(t)

	good := biweeklyOntario(tax.ModePeriodic)
	bad := biweeklyOntario(tax.ModePeriodic)
	bad.EmployeeID = "emp-bad"
	bad.PayPeriods = 0

	_, err := calc.CalculateBatch(context.Background(), []tax.PayPeriodInputs{good, bad, good})
	require.Error(t, err)

	var be *tax.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.Equal(t, "emp-bad", be.EmployeeID)
	assert.ErrorIs(t, err, tax.ErrNonPositivePayPeriods)
	assert.True(t, tax.IsPreconditionError(err))
}

func TestCalculateBatch_CancelledContext(t *testing.T) {
	calc := newCalculator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := calc.CalculateBatch(ctx, []tax.PayPeriodInputs{biweeklyOntario(tax.ModePeriodic)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBatch_Empty(t *testing.T) {
	calc := newCalculator(t)

	results, err := calc.CalculateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
