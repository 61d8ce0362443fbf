// internal/session/session.go

// Package session owns the meal in progress on the scale: the classifier
// state, the open meal and dish, and the log that shadows them. Everything
// runs on the caller's goroutine; a Session is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"meal-scale/internal/meallog"
	"meal-scale/internal/models"
	"meal-scale/internal/scale"
)

var (
	ErrNoMeal        = errors.New("no meal open")
	ErrNoDish        = errors.New("no dish open")
	ErrNoGroup       = errors.New("no food group selected")
	ErrEmptyMeal     = errors.New("meal has no dishes")
	ErrMealClosed    = errors.New("meal already closed")
	ErrNothingToSend = errors.New("no finished meal to send")
)

// Transmitter delivers a finished meal's records to the companion device.
type Transmitter interface {
	Transmit(ctx context.Context, lines []string) error
}

type Option func(*Session)

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

type Session struct {
	th     scale.Thresholds
	state  scale.State
	groups meallog.GroupLookup

	meal *models.Meal
	dish *models.Dish
	log  meallog.Log

	group    int
	groupSet bool

	now    func() time.Time
	logger *slog.Logger
}

func New(th scale.Thresholds, groups meallog.GroupLookup, opts ...Option) *Session {
	s := &Session{th: th, groups: groups, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// StartMeal opens a meal. It is a no-op while a meal, open or awaiting
// transmission, is held.
func (s *Session) StartMeal() bool {
	if s.meal != nil {
		return false
	}
	s.meal = &models.Meal{}
	s.log.StartMeal()
	s.logger.Info("meal started")
	return true
}

// StartDish opens a dish, opening the meal first if needed. A dish that
// already has ingredients is committed to the meal; an empty one is kept.
func (s *Session) StartDish() error {
	if s.meal == nil {
		s.StartMeal()
	}
	if !s.meal.Open() {
		return ErrMealClosed
	}
	if s.dish != nil {
		if s.dish.Empty() {
			return nil
		}
		s.commitDish()
	}
	s.dish = &models.Dish{}
	s.log.StartDish()
	s.state = s.state.ClearSaved()
	return nil
}

func (s *Session) SelectGroup(id int) {
	s.group = id
	s.groupSet = true
}

// AddIngredient weighs weightG grams of the selected group into the open
// dish. Weights are kept at the log's two-decimal precision so the log
// decodes back to exactly what is held here. An unknown group is still
// recorded with zero nutrition and reported.
func (s *Session) AddIngredient(weightG float64) (models.Ingredient, error) {
	if s.dish == nil {
		return models.Ingredient{}, ErrNoDish
	}
	if !s.groupSet {
		return models.Ingredient{}, ErrNoGroup
	}
	weightG = math.Round(weightG*100) / 100

	group, lerr := s.lookup(s.group)
	ing := models.NewIngredient(group, weightG)
	s.dish.Add(ing)
	s.log.AddIngredient(group.ID, weightG)
	s.logger.Debug("ingredient added", "group", group.ID, "weight_g", weightG, "dish_weight_g", s.dish.TotalWeightG)

	if lerr != nil {
		return ing, fmt.Errorf("add ingredient: %w", lerr)
	}
	return ing, nil
}

// DiscardLastIngredient drops the latest ingredient of the open dish.
func (s *Session) DiscardLastIngredient() bool {
	if s.dish == nil {
		return false
	}
	if _, ok := s.dish.RemoveLast(); !ok {
		return false
	}
	s.log.DropLastIngredient()
	return true
}

// CancelDish abandons the open dish and truncates its records.
func (s *Session) CancelDish() bool {
	if s.dish == nil {
		return false
	}
	removed := s.log.CancelDish()
	s.dish = nil
	s.state = s.state.ClearSaved()
	s.logger.Info("dish cancelled", "records_removed", removed)
	return true
}

// SaveDish marks the open dish as complete. The dish moves into the meal
// once the scale reports it lifted off.
func (s *Session) SaveDish() error {
	if s.dish == nil {
		return ErrNoDish
	}
	if s.dish.Empty() {
		return fmt.Errorf("save dish: %w", ErrNoDish)
	}
	s.state = s.state.MarkSaved(s.state.LastStableMass)
	s.logger.Info("dish saved", "weight_g", s.dish.TotalWeightG, "kcal", s.dish.Totals.Kcal)
	return nil
}

// FinishMeal closes the meal with the current time. An open dish with
// ingredients is committed; an empty one is dropped.
func (s *Session) FinishMeal() (models.Meal, error) {
	if s.meal == nil {
		return models.Meal{}, ErrNoMeal
	}
	if !s.meal.Open() {
		return models.Meal{}, ErrMealClosed
	}
	if s.dish != nil {
		if s.dish.Empty() {
			s.log.CancelDish()
			s.dish = nil
		} else {
			s.commitDish()
		}
	}
	if len(s.meal.Dishes) == 0 {
		return models.Meal{}, ErrEmptyMeal
	}

	at := s.now().Truncate(time.Second)
	s.meal.Close(at)
	s.log.EndMeal(at)
	s.logger.Info("meal finished", "dishes", len(s.meal.Dishes), "kcal", s.meal.Totals().Kcal)
	return s.Meal()
}

// Transmit sends the finished meal. On failure the meal and its log are left
// as they are so a retry resends the full stream.
func (s *Session) Transmit(ctx context.Context, tx Transmitter) error {
	if s.meal == nil || s.meal.Open() {
		return ErrNothingToSend
	}
	if err := tx.Transmit(ctx, s.log.Lines()); err != nil {
		s.logger.Warn("meal transmission failed", "error", err)
		return fmt.Errorf("transmit meal: %w", err)
	}
	s.Reset()
	return nil
}

// Reset forgets the meal, dish and log. Classifier state is kept: the
// scale has not moved.
func (s *Session) Reset() {
	s.meal = nil
	s.dish = nil
	s.log.Clear()
	s.state = s.state.ClearSaved()
}

func (s *Session) RequestTare() {
	s.state = s.state.RequestTare()
}

// Sample classifies one stable reading and applies the resulting event.
func (s *Session) Sample(mass float64) (scale.Result, error) {
	next, res := scale.Classify(s.th, s.state, mass)
	s.state = next

	switch res.Event {
	case scale.Increment:
		if s.dish == nil {
			s.logger.Debug("increment without open dish", "delta", res.Delta)
			return res, nil
		}
		_, err := s.AddIngredient(res.Delta)
		return res, err
	case scale.Decrement:
		if s.DiscardLastIngredient() {
			s.logger.Debug("last ingredient discarded", "mass", mass)
		}
	case scale.Release:
		if s.dish != nil && !s.dish.Empty() {
			s.commitDish()
		}
	case scale.Remove:
		s.logger.Debug("partial removal", "removed", s.state.CumulativeRemoved, "saved", s.state.DishMassAtLastSave)
	case scale.Tare:
		s.logger.Info("scale tared", "mass", mass)
	}
	return res, nil
}

func (s *Session) State() scale.State { return s.state }

// Meal returns a copy of the held meal.
func (s *Session) Meal() (models.Meal, error) {
	if s.meal == nil {
		return models.Meal{}, ErrNoMeal
	}
	return s.meal.Clone(), nil
}

// Dish returns a copy of the open dish.
func (s *Session) Dish() (models.Dish, error) {
	if s.dish == nil {
		return models.Dish{}, ErrNoDish
	}
	return s.dish.Clone(), nil
}

func (s *Session) Lines() []string { return s.log.Lines() }

func (s *Session) WriteLog(w io.Writer) error {
	_, err := s.log.WriteTo(w)
	return err
}

func (s *Session) commitDish() {
	s.meal.AddDish(s.dish.Clone())
	s.logger.Info("dish committed", "dish", len(s.meal.Dishes), "weight_g", s.dish.TotalWeightG)
	s.dish = nil
	s.state = s.state.ClearSaved()
}

func (s *Session) lookup(id int) (models.FoodGroup, error) {
	if s.groups == nil {
		return models.FoodGroup{ID: id}, nil
	}
	return s.groups.Lookup(id)
}
