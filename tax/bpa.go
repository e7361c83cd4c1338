package tax

import "github.com/shopspring/decimal"

// BasicPersonalAmount computes the federal basic personal amount (BPAF) for
// annual taxable income a and prescribed-zone deduction hd.
//
// Net income NI = a + hd selects one of three branches:
//
//	NI <= T4       MinimumAmount
//	T4 < NI < T5   MinimumAmount - (NI - T4) x (Min - Max) / (T5 - T4)
//	NI > T5        MaximumAmount
//
// NI == T5 matches no branch and returns a *DomainError.
func BasicPersonalAmount(p *TaxYearParameters, a, hd decimal.Decimal) (decimal.Decimal, error) {
	bpa := p.BasicPersonalAmount
	ni := a.Add(hd)

	switch {
	case ni.LessThanOrEqual(bpa.LowerThreshold):
		return Round(bpa.MinimumAmount), nil

	case ni.GreaterThan(bpa.LowerThreshold) && ni.LessThan(bpa.UpperThreshold):
		slope := bpa.MinimumAmount.Sub(bpa.MaximumAmount).
			Div(bpa.UpperThreshold.Sub(bpa.LowerThreshold))
		return Round(bpa.MinimumAmount.Sub(ni.Sub(bpa.LowerThreshold).Mul(slope))), nil

	case ni.GreaterThan(bpa.UpperThreshold):
		return Round(bpa.MaximumAmount), nil
	}

	return decimal.Zero, &DomainError{
		Formula: "BPAF",
		Value:   ni.String(),
		Err:     ErrNoIncomeBracket,
	}
}
