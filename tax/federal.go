/*
federal.go - Federal tax for the year and its credit chain

FORMULAS:
  A      = P x (I - F - F2 - F5A - U1) - HD - F1
  A_grad = S1 x (I + YTD - F - F2 - F5A - U1) + B1 + B - HD - F1,  S1 = P / PC
  K1     = 0.15 x TC
  K2     = contribution credit (periodic, graduated or year-to-date)
  K3     = P x K3 / PR
  K4     = min(0.15 x A, 0.15 x CEA)
  T3     = R x A - K - K1 - K2 - K3 - K4
  T1     = T3 (x 1.48 outside Canada) - P x LCF
  T1_grad drops the P multiplier on LCF.

  A negative periodic A is reported, not clamped: the calculator withholds
  the employee's requested L instead. A_grad is clamped at zero.
*/
package tax

import "github.com/shopspring/decimal"

// FederalEngine evaluates the federal formulas against one year's table.
type FederalEngine struct {
	Params *TaxYearParameters
}

func NewFederalEngine(p *TaxYearParameters) FederalEngine {
	return FederalEngine{Params: p}
}

// periodicNetPay is I - F - F2 - F5A - U1.
func periodicNetPay(in PayPeriodInputs, f5a decimal.Decimal) decimal.Decimal {
	return in.Gross.
		Sub(in.RegisteredPlanDeduction).
		Sub(in.AlimonyDeduction).
		Sub(f5a).
		Sub(in.UnionDues)
}

// AnnualTaxableIncome computes A for the periodic and year-to-date modes.
// negative reports A < 0; the returned value is unclamped.
func (e FederalEngine) AnnualTaxableIncome(in PayPeriodInputs, f5a decimal.Decimal) (a decimal.Decimal, negative bool, err error) {
	f1, err := AnnualizedDeductions(in.PayPeriods, in.PayPeriodsRemaining, in.AnnualDeductions)
	if err != nil {
		return zero, false, err
	}
	a = count(in.PayPeriods).Mul(periodicNetPay(in, f5a)).
		Sub(in.PrescribedZoneDeduction).
		Sub(f1)
	return Round(a), a.IsNegative(), nil
}

// AnnualizingFactor computes S1 = P / PC.
func AnnualizingFactor(periods, current int) (decimal.Decimal, error) {
	if err := requirePayPeriods(periods); err != nil {
		return zero, err
	}
	if current <= 0 {
		return zero, precondition("PC", current, ErrUndefinedAnnualizingFactor)
	}
	return count(periods).Div(count(current)), nil
}

// GraduatedTaxableIncome computes A_grad, the year-to-date income projected
// to a full year. It is never negative.
func (e FederalEngine) GraduatedTaxableIncome(in PayPeriodInputs, f5a, s1 decimal.Decimal) (decimal.Decimal, error) {
	f1, err := AnnualizedDeductions(in.PayPeriods, in.PayPeriodsRemaining, in.AnnualDeductions)
	if err != nil {
		return zero, err
	}
	projected := s1.Mul(periodicNetPay(in, f5a).Add(in.YTDNetIncome))
	a := projected.
		Add(in.YTDBonus).
		Add(in.Bonus).
		Sub(in.PrescribedZoneDeduction).
		Sub(f1)
	return Round(SaturateNonNegative(a)), nil
}

// K1 is the personal credit on the TD1 claim amount.
func (e FederalEngine) K1(claim decimal.Decimal) decimal.Decimal {
	return e.Params.Federal.LowestRate.Mul(claim)
}

// K2 is the CPP/EI credit; mode selects the estimate of annual contributions.
func (e FederalEngine) K2(mode CalculationMode, in ContributionCredit) (decimal.Decimal, error) {
	return contributionCredit(e.Params, e.Params.Federal.LowestRate, mode, in)
}

// K3 prorates other authorised federal credits.
func (e FederalEngine) K3(periods, remaining int, credits decimal.Decimal) (decimal.Decimal, error) {
	return otherCredits(periods, remaining, credits)
}

// K4 is the Canada employment credit.
func (e FederalEngine) K4(a, cea decimal.Decimal) decimal.Decimal {
	return employmentCredit(e.Params.Federal.LowestRate, a, cea)
}

// Rate returns R and K for annual taxable income a.
func (e FederalEngine) Rate(a decimal.Decimal) (r, k decimal.Decimal) {
	b := lookup(e.Params.Federal.Brackets, a)
	return b.Rate, b.Constant
}

// T3 computes annual basic federal tax.
func (e FederalEngine) T3(a, k1, k2, k3, k4 decimal.Decimal) decimal.Decimal {
	r, k := e.Rate(a)
	t3 := r.Mul(a).Sub(k).Sub(k1).Sub(k2).Sub(k3).Sub(k4)
	return Round(SaturateNonNegative(t3))
}

// LCF is the federal labour-sponsored funds credit for acquisition x.
//
// Below the cap it returns the acquisition amount itself, not the credit
// rate times it. Kept until the intended behaviour is confirmed; see the
// LCF entry in DESIGN.md.
func (e FederalEngine) LCF(acquisition decimal.Decimal) decimal.Decimal {
	lc := e.Params.Federal.LabourCredit
	credit := lc.Rate.Mul(acquisition)
	if lc.Cap.GreaterThan(credit) {
		return Round(acquisition)
	}
	return lc.Cap
}

// surtaxed applies the 48% surtax for employees outside Canada.
func (e FederalEngine) surtaxed(t3 decimal.Decimal, outside bool) decimal.Decimal {
	if !outside {
		return t3
	}
	return t3.Mul(one.Add(e.Params.Federal.OutsideCanadaSurtaxRate))
}

// T1 computes the annual federal tax deduction.
func (e FederalEngine) T1(t3 decimal.Decimal, periods int, lcf decimal.Decimal, outside bool) decimal.Decimal {
	t1 := e.surtaxed(t3, outside).Sub(count(periods).Mul(lcf))
	return Round(SaturateNonNegative(t1))
}

// T1Graduated is T1 for cumulative averaging: LCF is taken once.
func (e FederalEngine) T1Graduated(t3, lcf decimal.Decimal, outside bool) decimal.Decimal {
	t1 := e.surtaxed(t3, outside).Sub(lcf)
	return Round(SaturateNonNegative(t1))
}
