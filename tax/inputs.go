package tax

import "github.com/shopspring/decimal"

// =============================================================================
// PAY PERIOD INPUTS - Supplied fresh on every call
// =============================================================================

// PayPeriodInputs describes one employee for one pay period. Letters in the
// field comments are the CRA factor names.
type PayPeriodInputs struct {
	EmployeeID   string          `json:"employee_id,omitempty"`
	Jurisdiction Jurisdiction    `json:"jurisdiction"`
	Mode         CalculationMode `json:"mode,omitempty"`

	PayPeriods          int `json:"pay_periods"`           // P
	PayPeriodsRemaining int `json:"pay_periods_remaining"` // PR, including this one
	CurrentPayPeriod    int `json:"current_pay_period"`    // PC, graduated mode only
	ContributionMonths  int `json:"contribution_months"`   // PM

	Gross                   decimal.Decimal `json:"gross"`                     // I
	RegisteredPlanDeduction decimal.Decimal `json:"registered_plan_deduction"` // F
	AlimonyDeduction        decimal.Decimal `json:"alimony_deduction"`         // F2
	UnionDues               decimal.Decimal `json:"union_dues"`                // U1
	PrescribedZoneDeduction decimal.Decimal `json:"prescribed_zone_deduction"` // HD
	AnnualDeductions        decimal.Decimal `json:"annual_deductions"`         // F1
	Bonus                   decimal.Decimal `json:"bonus"`                     // B

	FederalClaim                    decimal.Decimal `json:"federal_claim"`                      // TC, zero means BPAF
	ProvincialClaim                 decimal.Decimal `json:"provincial_claim"`                   // TCP, zero means provincial basic amount
	OtherFederalCredits             decimal.Decimal `json:"other_federal_credits"`              // K3
	OtherProvincialCredits          decimal.Decimal `json:"other_provincial_credits"`           // K3P
	LabourFundAcquisition           decimal.Decimal `json:"labour_fund_acquisition"`            // LCF input
	ProvincialLabourFundAcquisition decimal.Decimal `json:"provincial_labour_fund_acquisition"` // LCP input
	AdditionalTax                   decimal.Decimal `json:"additional_tax"`                     // L
	DisabledDependants              int             `json:"disabled_dependants"`
	MinorDependants                 int             `json:"minor_dependants"`
	OutsideCanada                   bool            `json:"outside_canada"`

	PensionableEarnings decimal.Decimal `json:"pensionable_earnings"` // PI
	InsurableEarnings   decimal.Decimal `json:"insurable_earnings"`   // IE

	YTDPensionableEarnings decimal.Decimal `json:"ytd_pensionable_earnings"` // PIYTD
	YTDInsurableEarnings   decimal.Decimal `json:"ytd_insurable_earnings"`   // IEYTD
	YTDCPP                 decimal.Decimal `json:"ytd_cpp"`                  // D
	YTDCPP2                decimal.Decimal `json:"ytd_cpp2"`                 // D2
	YTDEI                  decimal.Decimal `json:"ytd_ei"`                   // D1
	YTDNetIncome           decimal.Decimal `json:"ytd_net_income"`           // periodic net income before this period
	YTDBonus               decimal.Decimal `json:"ytd_bonus"`                // B1
	YTDTax                 decimal.Decimal `json:"ytd_tax"`                  // tax withheld on periodic pay so far
	YTDNonPeriodicTax      decimal.Decimal `json:"ytd_non_periodic_tax"`     // tax withheld on bonuses so far
}

// Validate checks the caller preconditions that every mode shares.
func (in PayPeriodInputs) Validate() error {
	if !in.Mode.orDefault().Valid() {
		return precondition("mode", in.Mode, ErrInvalidMode)
	}
	if err := requirePayPeriods(in.PayPeriods); err != nil {
		return err
	}
	if err := requireRemainingPeriods(in.PayPeriodsRemaining); err != nil {
		return err
	}
	if err := requireMonths(in.ContributionMonths); err != nil {
		return err
	}
	if in.Mode.orDefault() == ModeGraduated && in.CurrentPayPeriod <= 0 {
		return precondition("PC", in.CurrentPayPeriod, ErrUndefinedAnnualizingFactor)
	}
	if !in.Jurisdiction.Supported() {
		return precondition("jurisdiction", in.Jurisdiction, ErrUnknownJurisdiction)
	}
	if in.DisabledDependants < 0 {
		return precondition("disabled_dependants", in.DisabledDependants, ErrNegativeInput)
	}
	if in.MinorDependants < 0 {
		return precondition("minor_dependants", in.MinorDependants, ErrNegativeInput)
	}
	for _, v := range in.amounts() {
		if v.value.IsNegative() {
			return precondition(v.field, v.value, ErrNegativeInput)
		}
	}
	return nil
}

type namedAmount struct {
	field string
	value decimal.Decimal
}

// amounts lists every money input that must not be negative.
func (in PayPeriodInputs) amounts() []namedAmount {
	return []namedAmount{
		{"I", in.Gross},
		{"F", in.RegisteredPlanDeduction},
		{"F2", in.AlimonyDeduction},
		{"U1", in.UnionDues},
		{"HD", in.PrescribedZoneDeduction},
		{"F1", in.AnnualDeductions},
		{"B", in.Bonus},
		{"TC", in.FederalClaim},
		{"TCP", in.ProvincialClaim},
		{"K3", in.OtherFederalCredits},
		{"K3P", in.OtherProvincialCredits},
		{"labour_fund_acquisition", in.LabourFundAcquisition},
		{"provincial_labour_fund_acquisition", in.ProvincialLabourFundAcquisition},
		{"L", in.AdditionalTax},
		{"PI", in.PensionableEarnings},
		{"IE", in.InsurableEarnings},
		{"PIYTD", in.YTDPensionableEarnings},
		{"IEYTD", in.YTDInsurableEarnings},
		{"D", in.YTDCPP},
		{"D2", in.YTDCPP2},
		{"D1", in.YTDEI},
		{"ytd_net_income", in.YTDNetIncome},
		{"B1", in.YTDBonus},
		{"ytd_tax", in.YTDTax},
		{"ytd_non_periodic_tax", in.YTDNonPeriodicTax},
	}
}

// =============================================================================
// CONTRIBUTION CREDIT INPUT - Shared by K2 and K2P
// =============================================================================

// ContributionCredit carries what the three K2 variants need. Each mode reads
// a different subset.
type ContributionCredit struct {
	PayPeriods          int // P
	PayPeriodsRemaining int // PR
	ContributionMonths  int // PM

	CPP decimal.Decimal // C
	EI  decimal.Decimal // EI premium for the period

	YTDCPP decimal.Decimal // D
	YTDEI  decimal.Decimal // D1

	AnnualizingFactor   decimal.Decimal // S1
	PensionableEarnings decimal.Decimal // PE = PI + PIYTD
	InsurableEarnings   decimal.Decimal // IE + IEYTD
	YTDBonus            decimal.Decimal // B1
}

// =============================================================================
// INTERMEDIATE FACTORS - Derived per call, never persisted by the core
// =============================================================================

type IntermediateFactors struct {
	NetIncome          decimal.Decimal `json:"ni"`
	BasicPersonal      decimal.Decimal `json:"bpaf"`
	TaxableIncome      decimal.Decimal `json:"a"`
	TaxableIncomeBelow bool            `json:"a_negative"`
	PeriodicNetIncome  decimal.Decimal `json:"periodic_net_income"` // I - F - F2 - F5A - U1
	AnnualizingFactor  decimal.Decimal `json:"s1"`

	CPP              decimal.Decimal `json:"c"`
	CPP2             decimal.Decimal `json:"c2"`
	CPP2Baseline     decimal.Decimal `json:"w"`
	EI               decimal.Decimal `json:"ei"`
	EnhancedCPP      decimal.Decimal `json:"f5"`
	EnhancedCPPShare decimal.Decimal `json:"f5a"`

	R   decimal.Decimal `json:"r"`
	K   decimal.Decimal `json:"k"`
	K1  decimal.Decimal `json:"k1"`
	K2  decimal.Decimal `json:"k2"`
	K3  decimal.Decimal `json:"k3"`
	K4  decimal.Decimal `json:"k4"`
	T3  decimal.Decimal `json:"t3"`
	LCF decimal.Decimal `json:"lcf"`

	V   decimal.Decimal `json:"v"`
	KP  decimal.Decimal `json:"kp"`
	K1P decimal.Decimal `json:"k1p"`
	K2P decimal.Decimal `json:"k2p"`
	K3P decimal.Decimal `json:"k3p"`
	K4P decimal.Decimal `json:"k4p"`
	T4  decimal.Decimal `json:"t4"`
	V1  decimal.Decimal `json:"v1"`
	V2  decimal.Decimal `json:"v2"`
	Y   decimal.Decimal `json:"y"`
	S   decimal.Decimal `json:"s"`
	LCP decimal.Decimal `json:"lcp"`
}

// =============================================================================
// WITHHOLDING RESULT
// =============================================================================

// WithholdingResult is what the pipeline publishes for one pay period.
type WithholdingResult struct {
	EmployeeID       string          `json:"employee_id,omitempty"`
	Year             int             `json:"year"`
	Mode             CalculationMode `json:"mode"`
	AnnualFederal    decimal.Decimal `json:"annual_federal"`    // T1 or T1_grad
	AnnualProvincial decimal.Decimal `json:"annual_provincial"` // T2
	Tax              decimal.Decimal `json:"tax"`               // T or T_grad
	NonPeriodicTax   decimal.Decimal `json:"non_periodic_tax"`  // share of Tax caused by the bonus
	CPP              decimal.Decimal `json:"cpp"`
	CPP2             decimal.Decimal `json:"cpp2"`
	EI               decimal.Decimal `json:"ei"`

	// FloorOverride is set when annual taxable income was negative and the
	// employee's requested additional tax L was withheld instead.
	FloorOverride bool `json:"floor_override"`

	Factors IntermediateFactors `json:"factors"`
}

// TotalDeductions is tax plus every contribution withheld this period.
func (r WithholdingResult) TotalDeductions() decimal.Decimal {
	return r.Tax.Add(r.CPP).Add(r.CPP2).Add(r.EI)
}
