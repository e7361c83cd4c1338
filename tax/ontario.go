/*
ontario.go - Ontario surtax, health premium and low-income tax reduction

FORMULAS (2025 values shown, all read from ProvincialParameters):
  V1 = 0                                      T4 <= 5710
     = 0.20 x (T4 - 5710)                     5710 < T4 < 7307
     = 0.20 x (T4 - 5710) + 0.36 x (T4 - 7307) T4 >= 7307

  V2 = min(cap, base + rate x (A - threshold)) for the highest band whose
       threshold A reaches; 0 below the first band.

  Y  = 544 x (disabled dependants + dependants under 19)
  S  = max(0, min(T4 + V1, 2 x 294 + Y - (T4 + V1)))
*/
package tax

import "github.com/shopspring/decimal"

func surtax(s SurtaxParameters, t4 decimal.Decimal) decimal.Decimal {
	if t4.LessThanOrEqual(s.FirstThreshold) {
		return zero
	}
	v1 := s.FirstRate.Mul(t4.Sub(s.FirstThreshold))
	if t4.GreaterThanOrEqual(s.SecondThreshold) {
		v1 = v1.Add(s.SecondRate.Mul(t4.Sub(s.SecondThreshold)))
	}
	return Round(v1)
}

func healthPremium(bands []HealthPremiumBand, a decimal.Decimal) decimal.Decimal {
	var band *HealthPremiumBand
	for i := range bands {
		if a.LessThan(bands[i].Threshold) {
			break
		}
		band = &bands[i]
	}
	if band == nil {
		return zero
	}
	premium := band.Base.Add(band.Rate.Mul(a.Sub(band.Threshold)))
	return Round(ClampToCap(premium, band.Cap))
}

func dependantReduction(r TaxReductionParameters, disabled, minors int) decimal.Decimal {
	return r.DependantAmount.Mul(count(disabled)).Add(r.DependantAmount.Mul(count(minors)))
}

func taxReduction(r TaxReductionParameters, t4, v1, y decimal.Decimal) decimal.Decimal {
	owed := t4.Add(v1)
	allowance := two.Mul(r.BasicAmount).Add(y).Sub(owed)
	return Round(SaturateNonNegative(decimal.Min(owed, allowance)))
}
