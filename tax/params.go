package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TAX YEAR PARAMETERS - Immutable constants for one calendar year
// =============================================================================

// TaxYearParameters holds every rate, threshold and cap the formulas use.
// A value is built once per year (see package ratetable) and shared
// read-only by every calculation; nothing in this package mutates it.
type TaxYearParameters struct {
	Year                int                                   `yaml:"year" json:"year"`
	Federal             FederalParameters                     `yaml:"federal" json:"federal"`
	BasicPersonalAmount BPAParameters                         `yaml:"basic_personal_amount" json:"basic_personal_amount"`
	CPP                 CPPParameters                         `yaml:"cpp" json:"cpp"`
	EI                  EIParameters                          `yaml:"ei" json:"ei"`
	Provinces           map[Jurisdiction]ProvincialParameters `yaml:"provinces" json:"provinces"`
}

// Bracket is one row of a rate table: income at or above Threshold is taxed
// at Rate less Constant.
type Bracket struct {
	Threshold decimal.Decimal `yaml:"threshold" json:"threshold"`
	Rate      decimal.Decimal `yaml:"rate" json:"rate"`
	Constant  decimal.Decimal `yaml:"constant" json:"constant"`
}

// LabourCreditParameters configures a labour-sponsored funds tax credit.
type LabourCreditParameters struct {
	Rate decimal.Decimal `yaml:"rate" json:"rate"`
	Cap  decimal.Decimal `yaml:"cap" json:"cap"`
}

type FederalParameters struct {
	Brackets                []Bracket              `yaml:"brackets" json:"brackets"`
	LowestRate              decimal.Decimal        `yaml:"lowest_rate" json:"lowest_rate"`
	CanadaEmploymentAmount  decimal.Decimal        `yaml:"canada_employment_amount" json:"canada_employment_amount"`
	OutsideCanadaSurtaxRate decimal.Decimal        `yaml:"outside_canada_surtax_rate" json:"outside_canada_surtax_rate"`
	LabourCredit            LabourCreditParameters `yaml:"labour_credit" json:"labour_credit"`
}

// BPAParameters configures the federal basic personal amount phase-out.
// MinimumAmount applies at or below LowerThreshold and MaximumAmount above
// UpperThreshold; the names follow the TD1 worksheet, not the magnitudes.
type BPAParameters struct {
	LowerThreshold decimal.Decimal `yaml:"lower_threshold" json:"lower_threshold"`
	UpperThreshold decimal.Decimal `yaml:"upper_threshold" json:"upper_threshold"`
	MinimumAmount  decimal.Decimal `yaml:"minimum_amount" json:"minimum_amount"`
	MaximumAmount  decimal.Decimal `yaml:"maximum_amount" json:"maximum_amount"`
}

type CPPParameters struct {
	Rate                             decimal.Decimal `yaml:"rate" json:"rate"`
	BaseRate                         decimal.Decimal `yaml:"base_rate" json:"base_rate"`
	FirstAdditionalRate              decimal.Decimal `yaml:"first_additional_rate" json:"first_additional_rate"`
	BasicExemption                   decimal.Decimal `yaml:"basic_exemption" json:"basic_exemption"`
	MaxContribution                  decimal.Decimal `yaml:"max_contribution" json:"max_contribution"`
	MaxBaseContribution              decimal.Decimal `yaml:"max_base_contribution" json:"max_base_contribution"`
	MaxPensionableEarnings           decimal.Decimal `yaml:"max_pensionable_earnings" json:"max_pensionable_earnings"`
	SecondRate                       decimal.Decimal `yaml:"second_rate" json:"second_rate"`
	SecondMaxContribution            decimal.Decimal `yaml:"second_max_contribution" json:"second_max_contribution"`
	AdditionalMaxPensionableEarnings decimal.Decimal `yaml:"additional_max_pensionable_earnings" json:"additional_max_pensionable_earnings"`
}

// SecondCeilingContribution is the CPP2 maximum implied by the earnings
// band: SecondRate x (YAMPE - YMPE).
func (c CPPParameters) SecondCeilingContribution() decimal.Decimal {
	return Round(c.SecondRate.Mul(c.AdditionalMaxPensionableEarnings.Sub(c.MaxPensionableEarnings)))
}

// validateSecondCeiling checks that the CPP2 band and maximum agree.
func (c CPPParameters) validateSecondCeiling() error {
	if !c.MaxPensionableEarnings.LessThan(c.AdditionalMaxPensionableEarnings) {
		return fmt.Errorf("%w: YAMPE %s must exceed YMPE %s",
			ErrInvalidParameters, c.AdditionalMaxPensionableEarnings, c.MaxPensionableEarnings)
	}
	if want := c.SecondCeilingContribution(); !c.SecondMaxContribution.Equal(want) {
		return fmt.Errorf("%w: second CPP maximum %s, band gives %s",
			ErrInvalidParameters, c.SecondMaxContribution, want)
	}
	return nil
}

// BaseRatio is the base-contribution share of the total CPP rate.
func (c CPPParameters) BaseRatio() decimal.Decimal {
	return c.BaseRate.Div(c.Rate)
}

// FirstAdditionalRatio is the first-additional share of the total CPP rate.
func (c CPPParameters) FirstAdditionalRatio() decimal.Decimal {
	return c.FirstAdditionalRate.Div(c.Rate)
}

type EIParameters struct {
	Rate                 decimal.Decimal `yaml:"rate" json:"rate"`
	MaxPremium           decimal.Decimal `yaml:"max_premium" json:"max_premium"`
	MaxInsurableEarnings decimal.Decimal `yaml:"max_insurable_earnings" json:"max_insurable_earnings"`
}

// =============================================================================
// PROVINCIAL PARAMETERS
// =============================================================================

// ProvincialParameters holds one jurisdiction's table. The optional blocks
// are only present for provinces that levy them (Ontario today).
type ProvincialParameters struct {
	Name             string                 `yaml:"name" json:"name"`
	Brackets         []Bracket              `yaml:"brackets" json:"brackets"`
	LowestRate       decimal.Decimal        `yaml:"lowest_rate" json:"lowest_rate"`
	BasicAmount      decimal.Decimal        `yaml:"basic_amount" json:"basic_amount"`
	EmploymentAmount decimal.Decimal        `yaml:"employment_amount" json:"employment_amount"`
	LabourCredit     LabourCreditParameters `yaml:"labour_credit" json:"labour_credit"`

	Surtax        *SurtaxParameters       `yaml:"surtax,omitempty" json:"surtax,omitempty"`
	HealthPremium []HealthPremiumBand     `yaml:"health_premium,omitempty" json:"health_premium,omitempty"`
	TaxReduction  *TaxReductionParameters `yaml:"tax_reduction,omitempty" json:"tax_reduction,omitempty"`
}

// SurtaxParameters is the two-tier surtax on basic provincial tax (V1).
type SurtaxParameters struct {
	FirstThreshold  decimal.Decimal `yaml:"first_threshold" json:"first_threshold"`
	FirstRate       decimal.Decimal `yaml:"first_rate" json:"first_rate"`
	SecondThreshold decimal.Decimal `yaml:"second_threshold" json:"second_threshold"`
	SecondRate      decimal.Decimal `yaml:"second_rate" json:"second_rate"`
}

// HealthPremiumBand: for taxable income at or above Threshold the premium
// is Base + Rate x (A - Threshold), never more than Cap.
type HealthPremiumBand struct {
	Threshold decimal.Decimal `yaml:"threshold" json:"threshold"`
	Base      decimal.Decimal `yaml:"base" json:"base"`
	Rate      decimal.Decimal `yaml:"rate" json:"rate"`
	Cap       decimal.Decimal `yaml:"cap" json:"cap"`
}

// TaxReductionParameters drives the low-income provincial reduction (S, Y).
type TaxReductionParameters struct {
	BasicAmount     decimal.Decimal `yaml:"basic_amount" json:"basic_amount"`
	DependantAmount decimal.Decimal `yaml:"dependant_amount" json:"dependant_amount"`
}

// Province returns the table for j.
func (p *TaxYearParameters) Province(j Jurisdiction) (ProvincialParameters, error) {
	if !j.Supported() {
		return ProvincialParameters{}, fmt.Errorf("%w: %q", ErrUnknownJurisdiction, j)
	}
	pp, ok := p.Provinces[j]
	if !ok {
		return ProvincialParameters{}, fmt.Errorf("%w: no %d table for %q", ErrUnknownJurisdiction, p.Year, j)
	}
	return pp, nil
}

// lookup returns the bracket that applies to income a. Income below the
// first threshold uses the first bracket.
func lookup(brackets []Bracket, a decimal.Decimal) Bracket {
	if len(brackets) == 0 {
		return Bracket{}
	}
	selected := brackets[0]
	for _, b := range brackets[1:] {
		if a.LessThan(b.Threshold) {
			break
		}
		selected = b
	}
	return selected
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the table for shapes the formulas cannot work with.
func (p *TaxYearParameters) Validate() error {
	if p.Year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidParameters, p.Year)
	}
	if err := validateBrackets("federal", p.Federal.Brackets); err != nil {
		return err
	}
	bpa := p.BasicPersonalAmount
	if !bpa.LowerThreshold.LessThan(bpa.UpperThreshold) {
		return fmt.Errorf("%w: basic personal amount thresholds %s >= %s",
			ErrInvalidParameters, bpa.LowerThreshold, bpa.UpperThreshold)
	}
	if !p.CPP.Rate.IsPositive() || !p.EI.Rate.IsPositive() {
		return fmt.Errorf("%w: CPP and EI rates must be positive", ErrInvalidParameters)
	}
	if err := p.CPP.validateSecondCeiling(); err != nil {
		return err
	}
	for j, pp := range p.Provinces {
		if !j.Supported() {
			return fmt.Errorf("%w: province %q", ErrInvalidParameters, j)
		}
		if err := validateBrackets(string(j), pp.Brackets); err != nil {
			return err
		}
		for i := 1; i < len(pp.HealthPremium); i++ {
			if !pp.HealthPremium[i-1].Threshold.LessThan(pp.HealthPremium[i].Threshold) {
				return fmt.Errorf("%w: %s health premium bands out of order", ErrInvalidParameters, j)
			}
		}
	}
	return nil
}

func validateBrackets(name string, brackets []Bracket) error {
	if len(brackets) == 0 {
		return fmt.Errorf("%w: %s has no brackets", ErrInvalidParameters, name)
	}
	for i := 1; i < len(brackets); i++ {
		if !brackets[i-1].Threshold.LessThan(brackets[i].Threshold) {
			return fmt.Errorf("%w: %s brackets out of order at %d", ErrInvalidParameters, name, i)
		}
	}
	return nil
}
