// internal/models/meal_test.go
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cereals = FoodGroup{ID: 15, Name: "cereals", CarbPerG: 0.7, LipidPerG: 0.02, ProteinPerG: 0.1}
	oils    = FoodGroup{ID: 9, Name: "oils", LipidPerG: 1.0}
)

func TestServings(t *testing.T) {
	tests := []struct {
		name string
		mass float64
		want float64
	}{
		{name: "zero", mass: 0, want: 0},
		{name: "exact half boundary", mass: 15, want: 1.5},
		{name: "rounds up to half", mass: 24.4, want: 2.5},
		{name: "rounds down", mass: 12.4, want: 1.0},
		{name: "quarter rounds away from zero", mass: 2.5, want: 0.5},
		{name: "below quarter", mass: 2.4, want: 0},
		{name: "whole", mass: 100, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Servings(tt.mass))
		})
	}
}

func TestCombineRecomputesServings(t *testing.T) {
	a := NewNutritionValue(2.4, 0, 0, 9.6)
	b := NewNutritionValue(2.4, 0, 0, 9.6)

	require.Equal(t, 0.0, a.CarbServings)

	sum := Combine(a, b)
	assert.InDelta(t, 4.8, sum.CarbG, 1e-9)
	assert.Equal(t, 0.5, sum.CarbServings, "servings derive from the summed mass")
	assert.InDelta(t, 19.2, sum.Kcal, 1e-9)
}

func TestNewIngredientKcalMatchesAtwater(t *testing.T) {
	ing := NewIngredient(cereals, 100)

	assert.InDelta(t, 70, ing.Nutrition.CarbG, 1e-9)
	assert.InDelta(t, 2, ing.Nutrition.LipidG, 1e-9)
	assert.InDelta(t, 10, ing.Nutrition.ProteinG, 1e-9)
	assert.InDelta(t, 70*4+2*9+10*4, ing.Nutrition.Kcal, 1e-9)
	assert.Equal(t, 7.0, ing.Nutrition.CarbServings)
}

func TestDishTotalsMatchIngredients(t *testing.T) {
	ings := []Ingredient{
		NewIngredient(cereals, 53.5),
		NewIngredient(oils, 53.5),
		NewIngredient(cereals, 24.4),
	}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}

	var first NutritionValue
	for i, order := range orders {
		var d Dish
		for _, idx := range order {
			d.Add(ings[idx])
		}
		assert.InDelta(t, 131.4, d.TotalWeightG, 1e-9)

		want := Combine(ings[order[0]].Nutrition, ings[order[1]].Nutrition, ings[order[2]].Nutrition)
		assert.InDelta(t, want.CarbG, d.Totals.CarbG, 1e-9)
		assert.InDelta(t, want.LipidG, d.Totals.LipidG, 1e-9)
		assert.InDelta(t, want.Kcal, d.Totals.Kcal, 1e-9)
		if i == 0 {
			first = d.Totals
			continue
		}
		assert.InDelta(t, first.ProteinG, d.Totals.ProteinG, 1e-9)
		assert.Equal(t, first.CarbServings, d.Totals.CarbServings)
	}
}

func TestDishRemoveLastAndReset(t *testing.T) {
	var d Dish
	_, ok := d.RemoveLast()
	assert.False(t, ok)

	d.Add(NewIngredient(cereals, 10))
	d.Add(NewIngredient(oils, 5))

	last, ok := d.RemoveLast()
	require.True(t, ok)
	assert.Equal(t, 9, last.Group.ID)
	assert.Equal(t, 1, d.Len())
	assert.InDelta(t, 10, d.TotalWeightG, 1e-9)
	assert.InDelta(t, 0.2, d.Totals.LipidG, 1e-9)

	d.Reset()
	assert.True(t, d.Empty())
	assert.Zero(t, d.TotalWeightG)
	assert.True(t, d.Totals.IsZero())
}

func TestDishCloneIsIndependent(t *testing.T) {
	var d Dish
	d.Add(NewIngredient(cereals, 10))
	c := d.Clone()
	d.Reset()

	assert.Equal(t, 1, c.Len())
	assert.InDelta(t, 10, c.TotalWeightG, 1e-9)
}

func TestMealCloneIsIndependent(t *testing.T) {
	var m Meal
	var d Dish
	d.Add(NewIngredient(cereals, 10))
	m.AddDish(d)

	c := m.Clone()
	c.Dishes[0].Add(NewIngredient(oils, 5))
	c.AddDish(Dish{})

	require.Len(t, m.Dishes, 1)
	assert.Equal(t, 1, m.Dishes[0].Len())
	assert.InDelta(t, 10, m.TotalWeightG(), 1e-9)
	assert.Len(t, c.Dishes, 2)
}

func TestMealDocumentAndSummary(t *testing.T) {
	closed := time.Date(2026, 3, 14, 13, 5, 0, 0, time.UTC)
	var d1, d2 Dish
	d1.Add(NewIngredient(cereals, 53.5))
	d1.Add(NewIngredient(oils, 53.5))
	d2.Add(NewIngredient(cereals, 24.4))

	m := Meal{}
	assert.True(t, m.Open())
	m.AddDish(d1)
	m.AddDish(d2)
	m.Close(closed)
	assert.False(t, m.Open())

	doc := ToDocument([]Meal{m})
	require.Len(t, doc.Comidas, 1)
	assert.Equal(t, closed, doc.Comidas[0].Fecha)
	require.Len(t, doc.Comidas[0].Platos, 2)
	assert.Equal(t, []DocIngredient{{Grupo: 15, Peso: 53.5}, {Grupo: 9, Peso: 53.5}}, doc.Comidas[0].Platos[0].Alimentos)
	assert.Equal(t, []DocIngredient{{Grupo: 15, Peso: 24.4}}, doc.Comidas[0].Platos[1].Alimentos)

	s := m.Summary()
	assert.Equal(t, 2, s.Dishes)
	assert.Equal(t, 3, s.Ingredients)
	assert.InDelta(t, 131.4, s.TotalWeightG, 1e-9)
	assert.InDelta(t, 53.5*1.0+77.9*0.02, s.Totals.LipidG, 1e-9)
}
