// internal/models/meal.go
package models

import (
	"time"
)

// FoodGroup is one row of the external nutrition table: nutrient densities
// in grams per gram of food.
type FoodGroup struct {
	ID          int     `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	CarbPerG    float64 `json:"carb_per_g" yaml:"carb_per_g"`
	LipidPerG   float64 `json:"lipid_per_g" yaml:"lipid_per_g"`
	ProteinPerG float64 `json:"protein_per_g" yaml:"protein_per_g"`
	KcalPerG    float64 `json:"kcal_per_g" yaml:"kcal_per_g"`
}

type Ingredient struct {
	Group     FoodGroup      `json:"group"`
	WeightG   float64        `json:"weight_g"`
	Nutrition NutritionValue `json:"nutrition"`
}

// NewIngredient weighs weightG grams of group. Kcal comes from the Atwater
// factors applied to the computed masses.
func NewIngredient(group FoodGroup, weightG float64) Ingredient {
	carb := weightG * group.CarbPerG
	lipid := weightG * group.LipidPerG
	protein := weightG * group.ProteinPerG
	kcal := carb*KcalPerGramCarb + lipid*KcalPerGramLipid + protein*KcalPerGramProtein
	return Ingredient{
		Group:     group,
		WeightG:   weightG,
		Nutrition: NewNutritionValue(carb, lipid, protein, kcal),
	}
}

// Dish is an ordered list of ingredients with running totals.
type Dish struct {
	Ingredients  []Ingredient   `json:"ingredients"`
	TotalWeightG float64        `json:"total_weight_g"`
	Totals       NutritionValue `json:"totals"`
}

func (d *Dish) Add(ing Ingredient) {
	d.Ingredients = append(d.Ingredients, ing)
	d.recompute()
}

// RemoveLast drops the most recently added ingredient.
func (d *Dish) RemoveLast() (Ingredient, bool) {
	if len(d.Ingredients) == 0 {
		return Ingredient{}, false
	}
	last := d.Ingredients[len(d.Ingredients)-1]
	d.Ingredients = d.Ingredients[:len(d.Ingredients)-1]
	d.recompute()
	return last, true
}

// Reset empties the dish.
func (d *Dish) Reset() {
	d.Ingredients = nil
	d.TotalWeightG = 0
	d.Totals = NutritionValue{}
}

func (d *Dish) Len() int { return len(d.Ingredients) }

func (d *Dish) Empty() bool { return len(d.Ingredients) == 0 }

// Clone returns a deep copy so the caller can reset d afterwards.
func (d *Dish) Clone() Dish {
	out := Dish{TotalWeightG: d.TotalWeightG, Totals: d.Totals}
	out.Ingredients = append([]Ingredient(nil), d.Ingredients...)
	return out
}

func (d *Dish) recompute() {
	var weight float64
	values := make([]NutritionValue, 0, len(d.Ingredients))
	for _, ing := range d.Ingredients {
		weight += ing.WeightG
		values = append(values, ing.Nutrition)
	}
	d.TotalWeightG = weight
	d.Totals = Combine(values...)
}

// Meal is one eating occasion. It stays open until ClosedAt is set.
type Meal struct {
	ID       string     `json:"id,omitempty"`
	Dishes   []Dish     `json:"dishes"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func (m *Meal) AddDish(d Dish) {
	m.Dishes = append(m.Dishes, d)
}

// Clone copies the meal deeply enough that changing the copy's dishes
// leaves m untouched.
func (m *Meal) Clone() Meal {
	out := Meal{ID: m.ID, ClosedAt: m.ClosedAt}
	if m.Dishes != nil {
		out.Dishes = make([]Dish, len(m.Dishes))
		for i := range m.Dishes {
			out.Dishes[i] = m.Dishes[i].Clone()
		}
	}
	return out
}

func (m *Meal) Close(at time.Time) {
	m.ClosedAt = &at
}

func (m *Meal) Open() bool { return m.ClosedAt == nil }

func (m *Meal) TotalWeightG() float64 {
	var w float64
	for _, d := range m.Dishes {
		w += d.TotalWeightG
	}
	return w
}

func (m *Meal) Totals() NutritionValue {
	values := make([]NutritionValue, 0, len(m.Dishes))
	for _, d := range m.Dishes {
		values = append(values, d.Totals)
	}
	return Combine(values...)
}
