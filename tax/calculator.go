/*
calculator.go - The withholding pipeline for one pay period

PIPELINE:
  1. Contributions:   C, W, C2, EI, F5, F5A
  2. Taxable income:  A (periodic, year-to-date) or A_grad with S1 (graduated)
  3. Federal:         BPAF -> K1, K2, K3, K4 -> T3 -> LCF -> T1
  4. Provincial:      K1P, K2P, K3P, K4P -> T4 -> V1, V2, Y, S -> LCP -> T2
  5. Withholding:     T (periodic, year-to-date) or T_grad (graduated)

WITHHOLDING:
  Periodic:   T      = (T1 + T2) / P + L
  Graduated:  T_grad = max(L, (T1 + T2 - YTD non-periodic tax) / S1 - YTD tax) + L

  T2 is the same in every mode, including P x LCP.

  When the periodic A is negative the formulas are not used at all: T = L
  and the result is flagged FloorOverride. A_grad is floored at zero
  instead, so graduated mode never substitutes.

CONCURRENCY:
  A Calculator holds only the immutable parameters. Calculate is safe to
  call from any number of goroutines; CalculateBatch does exactly that.
*/
package tax

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Calculator runs the full pipeline against one year's parameters.
type Calculator struct {
	Params *TaxYearParameters
}

func NewCalculator(p *TaxYearParameters) *Calculator {
	return &Calculator{Params: p}
}

// PeriodicWithholding computes T = round((T1 + T2) / P + L).
func PeriodicWithholding(t1, t2 decimal.Decimal, periods int, l decimal.Decimal) (decimal.Decimal, error) {
	if err := requirePayPeriods(periods); err != nil {
		return zero, err
	}
	return Round(t1.Add(t2).Div(count(periods)).Add(l)), nil
}

// GraduatedWithholding computes T_grad. The result is never below L.
func GraduatedWithholding(t1, t2, s1, ytdNonPeriodicTax, ytdTax, l decimal.Decimal) (decimal.Decimal, error) {
	if !s1.IsPositive() {
		return zero, precondition("S1", s1, ErrUndefinedAnnualizingFactor)
	}
	averaged := t1.Add(t2).Sub(ytdNonPeriodicTax).Div(s1).Sub(ytdTax)
	return Round(decimal.Max(l, averaged).Add(l)), nil
}

// Calculate computes withholding for one employee and pay period.
//
// With a bonus B the period is computed a second time without it; the
// difference is reported as NonPeriodicTax so the history can keep bonus
// tax apart from periodic tax.
func (c *Calculator) Calculate(in PayPeriodInputs) (WithholdingResult, error) {
	if err := in.Validate(); err != nil {
		return WithholdingResult{}, err
	}
	result, err := c.calculate(in)
	if err != nil || !in.Bonus.IsPositive() {
		return result, err
	}

	periodic := in
	periodic.Bonus = zero
	without, err := c.calculate(periodic)
	if err != nil {
		return WithholdingResult{}, err
	}
	result.NonPeriodicTax = SaturateNonNegative(result.Tax.Sub(without.Tax))
	return result, nil
}

func (c *Calculator) calculate(in PayPeriodInputs) (WithholdingResult, error) {
	p := c.Params
	mode := in.Mode.orDefault()

	fed := NewFederalEngine(p)
	prov, err := NewProvincialEngine(p, in.Jurisdiction)
	if err != nil {
		return WithholdingResult{}, err
	}

	var f IntermediateFactors

	// 1. Contributions
	if err := c.contributions(in, &f); err != nil {
		return WithholdingResult{}, err
	}

	// 2. Taxable income
	if mode == ModeGraduated {
		if f.AnnualizingFactor, err = AnnualizingFactor(in.PayPeriods, in.CurrentPayPeriod); err != nil {
			return WithholdingResult{}, err
		}
		if f.TaxableIncome, err = fed.GraduatedTaxableIncome(in, f.EnhancedCPPShare, f.AnnualizingFactor); err != nil {
			return WithholdingResult{}, err
		}
	} else {
		if f.TaxableIncome, f.TaxableIncomeBelow, err = fed.AnnualTaxableIncome(in, f.EnhancedCPPShare); err != nil {
			return WithholdingResult{}, err
		}
	}
	a := f.TaxableIncome
	f.PeriodicNetIncome = periodicNetPay(in, f.EnhancedCPPShare)
	f.NetIncome = a.Add(in.PrescribedZoneDeduction)

	credit := ContributionCredit{
		PayPeriods:          in.PayPeriods,
		PayPeriodsRemaining: in.PayPeriodsRemaining,
		ContributionMonths:  in.ContributionMonths,
		CPP:                 f.CPP,
		EI:                  f.EI,
		YTDCPP:              in.YTDCPP,
		YTDEI:               in.YTDEI,
		AnnualizingFactor:   f.AnnualizingFactor,
		PensionableEarnings: in.PensionableEarnings.Add(in.YTDPensionableEarnings),
		InsurableEarnings:   in.InsurableEarnings.Add(in.YTDInsurableEarnings),
		YTDBonus:            in.YTDBonus,
	}

	// 3. Federal
	claim := in.FederalClaim
	if claim.IsZero() {
		if f.BasicPersonal, err = BasicPersonalAmount(p, a, in.PrescribedZoneDeduction); err != nil {
			return WithholdingResult{}, err
		}
		claim = f.BasicPersonal
	}
	f.K1 = fed.K1(claim)
	if f.K2, err = fed.K2(mode, credit); err != nil {
		return WithholdingResult{}, err
	}
	if f.K3, err = fed.K3(in.PayPeriods, in.PayPeriodsRemaining, in.OtherFederalCredits); err != nil {
		return WithholdingResult{}, err
	}
	f.K4 = fed.K4(a, p.Federal.CanadaEmploymentAmount)
	f.R, f.K = fed.Rate(a)
	f.T3 = fed.T3(a, f.K1, f.K2, f.K3, f.K4)
	f.LCF = fed.LCF(in.LabourFundAcquisition)

	var t1 decimal.Decimal
	if mode == ModeGraduated {
		t1 = fed.T1Graduated(f.T3, f.LCF, in.OutsideCanada)
	} else {
		t1 = fed.T1(f.T3, in.PayPeriods, f.LCF, in.OutsideCanada)
	}

	// 4. Provincial
	f.K1P = prov.K1P(prov.Claim(in.ProvincialClaim))
	if f.K2P, err = prov.K2P(mode, credit); err != nil {
		return WithholdingResult{}, err
	}
	if f.K3P, err = prov.K3P(in.PayPeriods, in.PayPeriodsRemaining, in.OtherProvincialCredits); err != nil {
		return WithholdingResult{}, err
	}
	f.K4P = prov.K4P(a)
	f.V, f.KP = prov.Rate(a)
	f.T4 = prov.T4(a, f.K1P, f.K2P, f.K3P, f.K4P)
	f.V1 = prov.Surtax(f.T4)
	f.V2 = prov.HealthPremium(a)
	f.Y = prov.DependantReduction(in.DisabledDependants, in.MinorDependants)
	f.S = prov.TaxReduction(f.T4, f.V1, f.Y)
	f.LCP = prov.LCP(in.ProvincialLabourFundAcquisition)

	t2 := prov.T2(f.T4, f.V1, f.V2, f.S, in.PayPeriods, f.LCP)

	// 5. Withholding
	result := WithholdingResult{
		EmployeeID:       in.EmployeeID,
		Year:             p.Year,
		Mode:             mode,
		AnnualFederal:    t1,
		AnnualProvincial: t2,
		CPP:              f.CPP,
		CPP2:             f.CPP2,
		EI:               f.EI,
		Factors:          f,
	}

	switch {
	case mode == ModeGraduated:
		result.Tax, err = GraduatedWithholding(t1, t2, f.AnnualizingFactor,
			in.YTDNonPeriodicTax, in.YTDTax, in.AdditionalTax)
	case f.TaxableIncomeBelow:
		result.Tax = Round(in.AdditionalTax)
		result.AnnualFederal = zero
		result.AnnualProvincial = zero
		result.FloorOverride = true
	default:
		result.Tax, err = PeriodicWithholding(t1, t2, in.PayPeriods, in.AdditionalTax)
	}
	if err != nil {
		return WithholdingResult{}, err
	}
	return result, nil
}

func (c *Calculator) contributions(in PayPeriodInputs, f *IntermediateFactors) error {
	p := c.Params
	pm := in.ContributionMonths
	var err error

	if f.CPP, err = CPPContribution(p, pm, in.YTDCPP, in.PensionableEarnings, in.PayPeriods); err != nil {
		return err
	}
	if f.CPP2Baseline, err = PensionableBaseline(p, in.YTDPensionableEarnings, pm); err != nil {
		return err
	}
	if f.CPP2, err = SecondCPPContribution(p, pm, in.YTDCPP2, in.YTDPensionableEarnings,
		in.PensionableEarnings, f.CPP2Baseline); err != nil {
		return err
	}
	f.EI = EIPremium(p, in.YTDEI, in.InsurableEarnings)
	f.EnhancedCPP = EnhancedCPPDeduction(p, f.CPP, f.CPP2)
	f.EnhancedCPPShare, err = EnhancedCPPDeductionPeriodic(f.EnhancedCPP, in.PensionableEarnings, in.Bonus)
	return err
}

// =============================================================================
// BATCH
// =============================================================================

// BatchError identifies which input of a batch failed.
type BatchError struct {
	Index      int
	EmployeeID string
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch item %d (employee %q): %v", e.Index, e.EmployeeID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// CalculateBatch computes every input concurrently. Results are in input
// order. The first failure cancels the remaining work and is returned as a
// *BatchError.
func (c *Calculator) CalculateBatch(ctx context.Context, inputs []PayPeriodInputs) ([]WithholdingResult, error) {
	results := make([]WithholdingResult, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := c.Calculate(inputs[i])
			if err != nil {
				return &BatchError{Index: i, EmployeeID: inputs[i].EmployeeID, Err: err}
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
