/*
contributions.go - CPP, second-additional CPP and EI for the pay period

FORMULAS:
  C   = min(MaxContribution x PM/12 - D, Rate x (PI - BasicExemption/P))
  W   = max(YMPE x PM/12, PIYTD)
  C2  = min(SecondMax x PM/12 - D2, SecondRate x (PIYTD + PI - W))
  EI  = min(MaxPremium - D1, EIRate x IE)
  F5  = C x (FirstAdditionalRate / Rate) + C2
  F5A = F5 x (PI - B) / PI
  F1' = P x F1 / PR

  Every result is floored at zero and rounded to the cent. The annual
  maxima are ceilings: once D reaches the prorated maximum C is zero.

  None of these depend on the calculation mode.
*/
package tax

import "github.com/shopspring/decimal"

// CPPContribution computes C for the pay period.
func CPPContribution(p *TaxYearParameters, pm int, ytd, pi decimal.Decimal, periods int) (decimal.Decimal, error) {
	if err := requirePayPeriods(periods); err != nil {
		return zero, err
	}
	if err := requireMonths(pm); err != nil {
		return zero, err
	}

	remaining := p.CPP.MaxContribution.Mul(monthsFraction(pm)).Sub(ytd)
	exemption := p.CPP.BasicExemption.Div(count(periods))
	owed := p.CPP.Rate.Mul(pi.Sub(exemption))

	return Round(ClampToCap(owed, SaturateNonNegative(remaining))), nil
}

// PensionableBaseline computes W, the earnings level above which the second
// additional contribution applies.
func PensionableBaseline(p *TaxYearParameters, ytdPensionable decimal.Decimal, pm int) (decimal.Decimal, error) {
	if err := requireMonths(pm); err != nil {
		return zero, err
	}
	prorated := p.CPP.MaxPensionableEarnings.Mul(monthsFraction(pm))
	if prorated.GreaterThan(ytdPensionable) {
		return Round(prorated), nil
	}
	return ytdPensionable, nil
}

// SecondCPPContribution computes C2 for the pay period.
func SecondCPPContribution(p *TaxYearParameters, pm int, ytd2, ytdPensionable, pi, w decimal.Decimal) (decimal.Decimal, error) {
	if err := requireMonths(pm); err != nil {
		return zero, err
	}
	remaining := p.CPP.SecondMaxContribution.Mul(monthsFraction(pm)).Sub(ytd2)
	owed := ytdPensionable.Add(pi).Sub(w).Mul(p.CPP.SecondRate)

	return Round(SaturateNonNegative(decimal.Min(remaining, owed))), nil
}

// EIPremium computes the employment insurance premium for the pay period.
func EIPremium(p *TaxYearParameters, ytd, insurable decimal.Decimal) decimal.Decimal {
	remaining := p.EI.MaxPremium.Sub(ytd)
	owed := p.EI.Rate.Mul(insurable)
	return Round(ClampToCap(owed, SaturateNonNegative(remaining)))
}

// EnhancedCPPDeduction computes F5, the part of C and C2 that is deductible
// from income rather than credited.
func EnhancedCPPDeduction(p *TaxYearParameters, c, c2 decimal.Decimal) decimal.Decimal {
	if c.IsZero() && c2.IsZero() {
		return zero
	}
	return Round(c.Mul(p.CPP.FirstAdditionalRatio()).Add(c2))
}

// EnhancedCPPDeductionPeriodic computes F5A, the share of F5 attributable to
// periodic pay once the bonus b is removed.
func EnhancedCPPDeductionPeriodic(f5, pi, b decimal.Decimal) (decimal.Decimal, error) {
	if f5.IsZero() {
		return zero, nil
	}
	if pi.IsZero() {
		return zero, precondition("PI", pi, ErrZeroPensionableEarnings)
	}
	return Round(f5.Mul(pi.Sub(b)).Div(pi)), nil
}

// AnnualizedDeductions spreads annual deductions F1 that start after the
// first pay period over the periods that remain.
func AnnualizedDeductions(periods, remaining int, f1 decimal.Decimal) (decimal.Decimal, error) {
	if err := requirePayPeriods(periods); err != nil {
		return zero, err
	}
	if err := requireRemainingPeriods(remaining); err != nil {
		return zero, err
	}
	return Round(count(periods).Mul(f1).Div(count(remaining))), nil
}
