package tax

import "github.com/shopspring/decimal"

// contributionCredit is the shared body of K2 and K2P: the CPP base and EI
// contributions for the year, valued at rate (the lowest federal or
// provincial rate). The mode picks how the annual contributions are
// estimated; every variant caps them at the annual maxima.
//
// CPP is prorated by whole years of contribution months (PM/12 truncated).
func contributionCredit(p *TaxYearParameters, rate decimal.Decimal, mode CalculationMode, in ContributionCredit) (decimal.Decimal, error) {
	years := wholeYears(in.ContributionMonths)

	var cpp, ei decimal.Decimal
	switch mode.orDefault() {
	case ModePeriodic:
		if err := requirePayPeriods(in.PayPeriods); err != nil {
			return zero, err
		}
		periods := count(in.PayPeriods)
		annualBase := periods.Mul(in.CPP).Mul(p.CPP.BaseRatio())
		cpp = ClampToCap(annualBase, p.CPP.MaxBaseContribution).Mul(years)
		ei = ClampToCap(periods.Mul(in.EI), p.EI.MaxPremium)

	case ModeGraduated:
		exemption := p.CPP.BasicExemption
		pensionable := in.AnnualizingFactor.Mul(in.PensionableEarnings).Add(in.YTDBonus).Sub(exemption)
		pensionable = ClampToCap(pensionable, p.CPP.MaxPensionableEarnings.Sub(exemption))
		cpp = p.CPP.BaseRate.Mul(pensionable).Mul(years)

		insurable := in.AnnualizingFactor.Mul(in.InsurableEarnings).Add(in.YTDBonus)
		insurable = ClampToCap(insurable, p.EI.MaxInsurableEarnings)
		ei = p.EI.Rate.Mul(insurable)

	case ModeYearToDate:
		if err := requireRemainingPeriods(in.PayPeriodsRemaining); err != nil {
			return zero, err
		}
		remaining := count(in.PayPeriodsRemaining)
		projected := in.YTDCPP.Add(remaining.Mul(in.CPP)).Mul(p.CPP.BaseRatio())
		cpp = SaturateNonNegative(decimal.Min(p.CPP.MaxBaseContribution.Mul(years), projected))
		ei = ClampToCap(in.YTDEI.Add(remaining.Mul(in.EI)), p.EI.MaxPremium)

	default:
		return zero, precondition("mode", mode, ErrInvalidMode)
	}

	return Round(rate.Mul(cpp.Add(ei))), nil
}

// otherCredits prorates credits authorised part-way through the year:
// P x credits / PR.
func otherCredits(periods, remaining int, credits decimal.Decimal) (decimal.Decimal, error) {
	if err := requirePayPeriods(periods); err != nil {
		return zero, err
	}
	if err := requireRemainingPeriods(remaining); err != nil {
		return zero, err
	}
	return count(periods).Mul(credits).Div(count(remaining)), nil
}

// employmentCredit is min(rate x A, rate x amount), rounded.
func employmentCredit(rate, a, amount decimal.Decimal) decimal.Decimal {
	return Round(SaturateNonNegative(decimal.Min(rate.Mul(a), rate.Mul(amount))))
}
