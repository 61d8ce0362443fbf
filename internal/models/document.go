// internal/models/document.go
package models

import "time"

// Document is the generic tree handed to persistence and upload consumers.
// The JSON keys follow the wire vocabulary of the device.
type Document struct {
	Comidas []DocMeal `json:"comidas"`
}

type DocMeal struct {
	Fecha  time.Time `json:"fecha"`
	Platos []DocDish `json:"platos"`
}

type DocDish struct {
	Alimentos []DocIngredient `json:"alimentos"`
}

type DocIngredient struct {
	Grupo int     `json:"grupo"`
	Peso  float64 `json:"peso"`
}

// Document projects a closed meal. An open meal gets a zero fecha.
func (m *Meal) Document() DocMeal {
	out := DocMeal{Platos: make([]DocDish, 0, len(m.Dishes))}
	if m.ClosedAt != nil {
		out.Fecha = *m.ClosedAt
	}
	for _, d := range m.Dishes {
		dish := DocDish{Alimentos: make([]DocIngredient, 0, len(d.Ingredients))}
		for _, ing := range d.Ingredients {
			dish.Alimentos = append(dish.Alimentos, DocIngredient{Grupo: ing.Group.ID, Peso: ing.WeightG})
		}
		out.Platos = append(out.Platos, dish)
	}
	return out
}

func ToDocument(meals []Meal) Document {
	doc := Document{Comidas: make([]DocMeal, 0, len(meals))}
	for i := range meals {
		doc.Comidas = append(doc.Comidas, meals[i].Document())
	}
	return doc
}

// MealSummary is the per-meal nutrition digest served to clients.
type MealSummary struct {
	ID           string         `json:"id,omitempty"`
	ClosedAt     time.Time      `json:"closed_at"`
	Dishes       int            `json:"dishes"`
	Ingredients  int            `json:"ingredients"`
	TotalWeightG float64        `json:"total_weight_g"`
	Totals       NutritionValue `json:"totals"`
}

func (m *Meal) Summary() MealSummary {
	s := MealSummary{
		ID:           m.ID,
		Dishes:       len(m.Dishes),
		TotalWeightG: m.TotalWeightG(),
		Totals:       m.Totals(),
	}
	if m.ClosedAt != nil {
		s.ClosedAt = *m.ClosedAt
	}
	for _, d := range m.Dishes {
		s.Ingredients += len(d.Ingredients)
	}
	return s
}
