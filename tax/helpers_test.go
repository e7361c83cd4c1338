package tax_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/tax"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func params2025(t *testing.T) *tax.TaxYearParameters {
	t.Helper()
	p, err := ratetable.Default()
	require.NoError(t, err)
	return p
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// assertMoney compares at cent precision so "71300" equals "71300.00".
func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, money(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

// biweeklyOntario is a 26-period Ontario employee earning 2000 per period
// with no other deductions or claims.
func biweeklyOntario(mode tax.CalculationMode) tax.PayPeriodInputs {
	return tax.PayPeriodInputs{
		EmployeeID:          "emp-1",
		Jurisdiction:        tax.Ontario,
		Mode:                mode,
		PayPeriods:          26,
		PayPeriodsRemaining: 26,
		CurrentPayPeriod:    1,
		ContributionMonths:  12,
		Gross:               money("2000"),
		PensionableEarnings: money("2000"),
		InsurableEarnings:   money("2000"),
	}
}
