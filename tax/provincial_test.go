package tax_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/tax"
)

func ontario(t *testing.T) tax.ProvincialEngine {
	t.Helper()
	e, err := tax.NewProvincialEngine(params2025(t), tax.Ontario)
	require.NoError(t, err)
	return e
}

func TestNewProvincialEngine_UnknownJurisdiction(t *testing.T) {
	p := params2025(t)

	_, err := tax.NewProvincialEngine(p, tax.Alberta)
	assert.ErrorIs(t, err, tax.ErrUnknownJurisdiction, "no 2025 Alberta table is loaded")

	_, err = tax.NewProvincialEngine(p, tax.Quebec)
	assert.ErrorIs(t, err, tax.ErrUnknownJurisdiction, "Quebec is never supported")
	assert.True(t, tax.IsPreconditionError(err))
}

func TestProvincialCredits(t *testing.T) {
	on := ontario(t)

	assertMoney(t, "12747", on.Claim(money("0")), "claim defaults to the basic amount")
	assertMoney(t, "10000", on.Claim(money("10000")))
	assertMoney(t, "643.72", on.K1P(on.Claim(money("0"))))

	k2p, err := on.K2P(tax.ModePeriodic, biweeklyCredit())
	require.NoError(t, err)
	assertMoney(t, "164.30", k2p)

	k3p, err := on.K3P(26, 26, money("50"))
	require.NoError(t, err)
	assertMoney(t, "50", k3p)

	assertMoney(t, "0", on.K4P(money("51515.10")), "Ontario has no employment amount")
}

func TestProvincialRate(t *testing.T) {
	on := ontario(t)

	v, kp := on.Rate(money("51515.10"))
	assert.True(t, money("0.0505").Equal(v))
	assert.True(t, kp.IsZero())

	v, kp = on.Rate(money("120000"))
	assert.True(t, money("0.1116").Equal(v))
	assert.True(t, money("4294").Equal(kp))
}

func TestT4(t *testing.T) {
	on := ontario(t)

	t4 := on.T4(money("51515.10"), money("643.72"), money("164.30"), money("0"), money("0"))
	assertMoney(t, "1793.49", t4)

	t4 = on.T4(money("10000"), money("643.72"), money("34.51"), money("0"), money("0"))
	assertMoney(t, "0", t4)
}

// =============================================================================
// ONTARIO SURTAX, HEALTH PREMIUM, TAX REDUCTION
// =============================================================================

func TestOntarioSurtax(t *testing.T) {
	on := ontario(t)

	tests := []struct {
		t4   string
		want string
	}{
		{"0", "0"},
		{"5000", "0"},
		{"5710", "0"},
		{"6000", "58.00"},
		{"7307", "319.40"},
		{"8000", "707.48"},
		{"25016.84", "10236.91"},
	}

	for _, tt := range tests {
		assertMoney(t, tt.want, on.Surtax(money(tt.t4)), "V1 at T4=%s", tt.t4)
	}
}

func TestOntarioHealthPremium(t *testing.T) {
	on := ontario(t)

	tests := []struct {
		a    string
		want string
	}{
		{"15000", "0"},
		{"20000", "0"},
		{"22000", "120"},
		{"25000", "300"},
		{"36000", "300"},
		{"38000", "420"},
		{"40000", "450"},
		{"48500", "575"},
		{"50000", "600"},
		{"72000", "600"},
		{"80000", "750"},
		{"100000", "750"},
		{"200000", "750"},
		{"200400", "850"},
		{"250000", "900"},
	}

	for _, tt := range tests {
		assertMoney(t, tt.want, on.HealthPremium(money(tt.a)), "V2 at A=%s", tt.a)
	}
}

func TestOntarioHealthPremium_NonDecreasing(t *testing.T) {
	on := ontario(t)

	prev := on.HealthPremium(money("0"))
	for a := 0; a <= 260000; a += 250 {
		got := on.HealthPremium(decimal.NewFromInt(int64(a)))
		assert.True(t, got.GreaterThanOrEqual(prev), "V2 fell at %d", a)
		prev = got
	}
}

func TestOntarioTaxReduction(t *testing.T) {
	on := ontario(t)

	assertMoney(t, "0", on.DependantReduction(0, 0))
	assertMoney(t, "1632", on.DependantReduction(1, 2))

	tests := []struct {
		name string
		t4   string
		v1   string
		y    string
		want string
	}{
		{"reduction covers all tax", "200", "0", "0", "200"},
		{"partial reduction", "400", "0", "0", "188"},
		{"no reduction at higher tax", "1000", "0", "0", "0"},
		{"dependants raise the allowance", "400", "0", "544", "400"},
		{"surtax counts toward tax", "300", "100", "0", "188"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := on.TaxReduction(money(tt.t4), money(tt.v1), money(tt.y))
			assertMoney(t, tt.want, got)
		})
	}
}

func TestT2(t *testing.T) {
	on := ontario(t)

	assertMoney(t, "0", on.LCP(money("5000")), "Ontario has no labour-sponsored credit")
	assertMoney(t, "2393.49", on.T2(money("1793.49"), money("0"), money("600"), money("0"), 26, money("0")))
	assertMoney(t, "0", on.T2(money("100"), money("0"), money("0"), money("188"), 26, money("0")))
}

func TestProvincialEngine_WithoutOntarioBlocks(t *testing.T) {
	// GIVEN: A jurisdiction table with no surtax, premium or reduction
	// WHEN: Evaluating the Ontario-only factors
	// THEN: They are all zero and the labour credit applies

	p := params2025(t)
	p.Provinces[tax.Alberta] = tax.ProvincialParameters{
		Name:        "Alberta",
		Brackets:    []tax.Bracket{{Threshold: money("0"), Rate: money("0.10"), Constant: money("0")}},
		LowestRate:  money("0.10"),
		BasicAmount: money("22323"),
		LabourCredit: tax.LabourCreditParameters{
			Rate: money("0.10"),
			Cap:  money("500"),
		},
	}

	ab, err := tax.NewProvincialEngine(p, tax.Alberta)
	require.NoError(t, err)

	assertMoney(t, "0", ab.Surtax(money("10000")))
	assertMoney(t, "0", ab.HealthPremium(money("100000")))
	assertMoney(t, "0", ab.DependantReduction(2, 2))
	assertMoney(t, "0", ab.TaxReduction(money("100"), money("0"), money("0")))
	assertMoney(t, "200", ab.LCP(money("2000")))
	assertMoney(t, "500", ab.LCP(money("10000")), "capped")
}
