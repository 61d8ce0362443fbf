// internal/storage/sqlite_test.go
package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-scale/internal/foodgroup"
	"meal-scale/internal/models"
)

func newStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func meal(t *testing.T, at time.Time, dishes ...[]models.DocIngredient) models.Meal {
	t.Helper()
	tbl := foodgroup.Default()
	var m models.Meal
	for _, d := range dishes {
		var dish models.Dish
		for _, ing := range d {
			g, err := tbl.Lookup(ing.Grupo)
			require.NoError(t, err)
			dish.Add(models.NewIngredient(g, ing.Peso))
		}
		m.AddDish(dish)
	}
	m.Close(at)
	return m
}

func TestSaveAndGetMeals(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	lunch := meal(t, time.Date(2026, 3, 14, 13, 5, 9, 0, time.UTC),
		[]models.DocIngredient{{Grupo: 15, Peso: 53.5}, {Grupo: 9, Peso: 53.5}},
		[]models.DocIngredient{{Grupo: 15, Peso: 24.4}},
	)
	dinner := meal(t, time.Date(2026, 3, 15, 21, 0, 0, 0, time.UTC),
		[]models.DocIngredient{{Grupo: 4, Peso: 150}},
	)
	require.NoError(t, s.SaveMeals(ctx, []models.Meal{lunch, dinner}))

	got, err := s.GetMeals(ctx, "", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, MealID(&dinner), got[0].ID, "newest first")

	l := got[1]
	require.Len(t, l.Dishes, 2)
	assert.Equal(t, models.ToDocument([]models.Meal{lunch}), models.ToDocument([]models.Meal{l}))
	assert.InDelta(t, lunch.Totals().Kcal, l.Totals().Kcal, 1e-9)
	assert.Equal(t, "aceites", l.Dishes[0].Ingredients[1].Group.Name)
	assert.InDelta(t, 107, l.Dishes[0].TotalWeightG, 1e-9)
}

func TestSaveMealsIsIdempotent(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	m := meal(t, time.Date(2026, 3, 14, 13, 5, 9, 0, time.UTC), []models.DocIngredient{{Grupo: 1, Peso: 200}})

	require.NoError(t, s.SaveMeals(ctx, []models.Meal{m}))
	require.NoError(t, s.SaveMeals(ctx, []models.Meal{m}))

	got, err := s.GetMeals(ctx, "", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Dishes, 1)
	assert.Len(t, got[0].Dishes[0].Ingredients, 1)
}

func TestGetMealsDateRange(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	for day := 10; day <= 14; day++ {
		m := meal(t, time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC), []models.DocIngredient{{Grupo: 13, Peso: 100}})
		require.NoError(t, s.SaveMeals(ctx, []models.Meal{m}))
	}

	got, err := s.GetMeals(ctx, "2026-03-11", "2026-03-13", 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.GetMeals(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 14, got[0].ClosedAt.Day())
}

func TestSaveMealsRejectsOpenMeal(t *testing.T) {
	s := newStorage(t)
	err := s.SaveMeals(context.Background(), []models.Meal{{}})
	assert.ErrorContains(t, err, "not closed")
}

func TestEmptyDishSurvives(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	m := meal(t, time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC), nil, []models.DocIngredient{{Grupo: 2, Peso: 250}})
	require.NoError(t, s.SaveMeals(ctx, []models.Meal{m}))

	got, err := s.GetMeals(ctx, "", "", 1)
	require.NoError(t, err)
	require.Len(t, got[0].Dishes, 2)
	assert.True(t, got[0].Dishes[0].Empty())
	assert.Equal(t, 1, got[0].Dishes[1].Len())
}

func TestSaveMealsKeepsDistinctMealsClosedTogether(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 13, 5, 9, 0, time.UTC)

	first := meal(t, at, []models.DocIngredient{{Grupo: 15, Peso: 53.5}})
	second := meal(t, at, []models.DocIngredient{{Grupo: 9, Peso: 12}})
	assert.NotEqual(t, MealID(&first), MealID(&second))

	require.NoError(t, s.SaveMeals(ctx, []models.Meal{first}))
	require.NoError(t, s.SaveMeals(ctx, []models.Meal{second}))
	require.NoError(t, s.SaveMeals(ctx, []models.Meal{second}), "resend")

	got, err := s.GetMeals(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSaveMealsWithUnreadableCloseTime(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	// A malformed FIN-COMIDA decodes to the zero time.
	a := meal(t, time.Time{}, []models.DocIngredient{{Grupo: 15, Peso: 10}})
	b := meal(t, time.Time{}, []models.DocIngredient{{Grupo: 15, Peso: 20}})
	require.NoError(t, s.SaveMeals(ctx, []models.Meal{a, b}))

	got, err := s.GetMeals(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSaveMealsIdenticalMealsInOneBatch(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 13, 5, 9, 0, time.UTC)
	m := meal(t, at, []models.DocIngredient{{Grupo: 1, Peso: 200}})

	batch := []models.Meal{m, m}
	require.NoError(t, s.SaveMeals(ctx, batch))
	require.NoError(t, s.SaveMeals(ctx, batch), "resend of the same batch")

	got, err := s.GetMeals(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPragmasOnEveryConnection(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	c1, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer c2.Close()

	for _, c := range []*sql.Conn{c1, c2} {
		var fk, busy int
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
		assert.Equal(t, 1, fk)
		assert.Equal(t, 10000, busy)
	}
}
