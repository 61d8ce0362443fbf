// internal/models/nutrition.go
package models

import "math"

// Atwater factors, kcal per gram.
const (
	KcalPerGramCarb    = 4.0
	KcalPerGramLipid   = 9.0
	KcalPerGramProtein = 4.0
)

// NutritionValue holds nutrient masses in grams plus the servings derived
// from them. Build it with NewNutritionValue or Combine so the servings are
// never out of step with the masses.
type NutritionValue struct {
	CarbG    float64 `json:"carb_g"`
	LipidG   float64 `json:"lipid_g"`
	ProteinG float64 `json:"protein_g"`
	Kcal     float64 `json:"kcal"`

	CarbServings    float64 `json:"carb_servings"`
	LipidServings   float64 `json:"lipid_servings"`
	ProteinServings float64 `json:"protein_servings"`
}

// Servings converts a nutrient mass into half-unit servings of 10 g.
func Servings(massG float64) float64 {
	return math.Round(2*(massG/10)) / 2
}

func NewNutritionValue(carbG, lipidG, proteinG, kcal float64) NutritionValue {
	return NutritionValue{
		CarbG:           carbG,
		LipidG:          lipidG,
		ProteinG:        proteinG,
		Kcal:            kcal,
		CarbServings:    Servings(carbG),
		LipidServings:   Servings(lipidG),
		ProteinServings: Servings(proteinG),
	}
}

// Combine sums the masses of all values and recomputes servings from the
// total. Servings of the parts are not added.
func Combine(values ...NutritionValue) NutritionValue {
	var carb, lipid, protein, kcal float64
	for _, v := range values {
		carb += v.CarbG
		lipid += v.LipidG
		protein += v.ProteinG
		kcal += v.Kcal
	}
	return NewNutritionValue(carb, lipid, protein, kcal)
}

// Add is shorthand for Combine(n, other).
func (n NutritionValue) Add(other NutritionValue) NutritionValue {
	return Combine(n, other)
}

// IsZero reports whether every mass is zero.
func (n NutritionValue) IsZero() bool {
	return n.CarbG == 0 && n.LipidG == 0 && n.ProteinG == 0 && n.Kcal == 0
}
