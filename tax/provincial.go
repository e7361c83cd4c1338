package tax

import "github.com/shopspring/decimal"

// =============================================================================
// PROVINCIAL ENGINE - Mirrors FederalEngine with a jurisdiction's table
// =============================================================================

// ProvincialEngine evaluates provincial or territorial tax for one
// jurisdiction. Surtax, health premium and tax reduction only apply when the
// jurisdiction's table carries those blocks.
type ProvincialEngine struct {
	Jurisdiction Jurisdiction
	Table        ProvincialParameters
	Params       *TaxYearParameters
}

// NewProvincialEngine fails with ErrUnknownJurisdiction when the year has
// no table for j.
func NewProvincialEngine(p *TaxYearParameters, j Jurisdiction) (ProvincialEngine, error) {
	table, err := p.Province(j)
	if err != nil {
		return ProvincialEngine{}, err
	}
	return ProvincialEngine{Jurisdiction: j, Table: table, Params: p}, nil
}

// Claim returns TCP, defaulting to the provincial basic amount.
func (e ProvincialEngine) Claim(tcp decimal.Decimal) decimal.Decimal {
	if tcp.IsZero() {
		return e.Table.BasicAmount
	}
	return tcp
}

func (e ProvincialEngine) K1P(tcp decimal.Decimal) decimal.Decimal {
	return Round(e.Table.LowestRate.Mul(tcp))
}

func (e ProvincialEngine) K2P(mode CalculationMode, in ContributionCredit) (decimal.Decimal, error) {
	return contributionCredit(e.Params, e.Table.LowestRate, mode, in)
}

func (e ProvincialEngine) K3P(periods, remaining int, credits decimal.Decimal) (decimal.Decimal, error) {
	return otherCredits(periods, remaining, credits)
}

func (e ProvincialEngine) K4P(a decimal.Decimal) decimal.Decimal {
	return employmentCredit(e.Table.LowestRate, a, e.Table.EmploymentAmount)
}

// Rate returns V and KP for annual taxable income a.
func (e ProvincialEngine) Rate(a decimal.Decimal) (v, kp decimal.Decimal) {
	b := lookup(e.Table.Brackets, a)
	return b.Rate, b.Constant
}

// T4 computes annual basic provincial tax.
func (e ProvincialEngine) T4(a, k1p, k2p, k3p, k4p decimal.Decimal) decimal.Decimal {
	v, kp := e.Rate(a)
	t4 := v.Mul(a).Sub(kp).Sub(k1p).Sub(k2p).Sub(k3p).Sub(k4p)
	return Round(SaturateNonNegative(t4))
}

// LCP is the provincial labour-sponsored funds credit: rate x acquisition,
// capped. Zero where the jurisdiction has no credit.
func (e ProvincialEngine) LCP(acquisition decimal.Decimal) decimal.Decimal {
	lc := e.Table.LabourCredit
	if lc.Rate.IsZero() {
		return zero
	}
	return Round(ClampToCap(lc.Rate.Mul(acquisition), lc.Cap))
}

// Surtax computes V1.
func (e ProvincialEngine) Surtax(t4 decimal.Decimal) decimal.Decimal {
	if e.Table.Surtax == nil {
		return zero
	}
	return surtax(*e.Table.Surtax, t4)
}

// HealthPremium computes V2.
func (e ProvincialEngine) HealthPremium(a decimal.Decimal) decimal.Decimal {
	return healthPremium(e.Table.HealthPremium, a)
}

// DependantReduction computes Y.
func (e ProvincialEngine) DependantReduction(disabled, minors int) decimal.Decimal {
	if e.Table.TaxReduction == nil {
		return zero
	}
	return dependantReduction(*e.Table.TaxReduction, disabled, minors)
}

// TaxReduction computes S.
func (e ProvincialEngine) TaxReduction(t4, v1, y decimal.Decimal) decimal.Decimal {
	if e.Table.TaxReduction == nil {
		return zero
	}
	return taxReduction(*e.Table.TaxReduction, t4, v1, y)
}

// T2 computes the annual provincial tax deduction. periods is P for the
// periodic modes and 1 for cumulative averaging.
func (e ProvincialEngine) T2(t4, v1, v2, s decimal.Decimal, periods int, lcp decimal.Decimal) decimal.Decimal {
	t2 := t4.Add(v1).Add(v2).Sub(s).Sub(count(periods).Mul(lcp))
	return Round(SaturateNonNegative(t2))
}
