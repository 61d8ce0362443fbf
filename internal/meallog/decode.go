// internal/meallog/decode.go
package meallog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"meal-scale/internal/models"
)

// GroupLookup resolves a food-group id to its densities. A lookup error
// still yields a usable FoodGroup carrying the id.
type GroupLookup interface {
	Lookup(id int) (models.FoodGroup, error)
}

type decodeConfig struct {
	groups GroupLookup
	loc    *time.Location
	logger *slog.Logger
}

type Option func(*decodeConfig)

// WithGroups attaches a nutrition table so decoded ingredients carry
// nutrition. Without one every ingredient has zero nutrition.
func WithGroups(g GroupLookup) Option { return func(c *decodeConfig) { c.groups = g } }

// WithLocation sets the zone FIN-COMIDA timestamps are read in.
func WithLocation(loc *time.Location) Option { return func(c *decodeConfig) { c.loc = loc } }

func WithLogger(l *slog.Logger) Option { return func(c *decodeConfig) { c.logger = l } }

// State is a decoder's position in a record stream: the closed meals so far,
// the open meal and dish cursors, and the counters. Step treats a State as
// a value and never modifies the one it is given; the zero State is the
// start of a stream.
type State struct {
	Meals     []models.Meal
	Open      *models.Meal // nil when no meal is open
	Dish      int          // index of the open dish in Open.Dishes, -1 for none
	Line      int
	Done      bool
	Discarded int
}

// Rules fix how records are interpreted: the zone FIN-COMIDA is read in and
// the nutrition table. A nil Location means time.Local.
type Rules struct {
	Groups   GroupLookup
	Location *time.Location
}

// Step decodes one line with default Rules.
func Step(s State, line string) (State, error) {
	return Rules{}.Step(s, line)
}

// Step returns the state after line. The error, if any, is a *RecordError
// describing a condition that was recovered from; the returned state is
// always usable.
func (r Rules) Step(s State, line string) (State, error) {
	s.Line++
	text := strings.TrimSpace(line)
	if text == "" {
		return s, nil
	}
	if s.Done {
		return s, recordError(s, text, ErrFinished)
	}

	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	rec, perr := ParseRecord(text, loc)

	switch rec.Kind {
	case StartMeal:
		if s.Open != nil {
			s.Discarded++
		}
		s.Open = &models.Meal{}
		s.Dish = -1
		return s, nil

	case StartDish:
		if s.Open == nil {
			return s, recordError(s, text, fmt.Errorf("%w: %s without open meal", ErrOutOfOrder, TagStartDish))
		}
		m := s.Open.Clone()
		m.AddDish(models.Dish{})
		s.Open = &m
		s.Dish = len(m.Dishes) - 1
		return s, nil

	case Ingredient:
		if s.Open == nil || s.Dish < 0 {
			return s, recordError(s, text, fmt.Errorf("%w: %s without open dish", ErrOutOfOrder, TagIngredient))
		}
		group, lerr := r.lookup(rec.Group)
		m := s.Open.Clone()
		m.Dishes[s.Dish].Add(models.NewIngredient(group, rec.Weight))
		s.Open = &m
		return s, recordError(s, text, errors.Join(unwrapRecord(perr), lerr))

	case EndMeal:
		if s.Open == nil {
			return s, recordError(s, text, fmt.Errorf("%w: %s without open meal", ErrOutOfOrder, TagEndMeal))
		}
		m := s.Open.Clone()
		m.Close(rec.At)
		s.Meals = append(s.Meals[:len(s.Meals):len(s.Meals)], m)
		s.Open = nil
		s.Dish = -1
		return s, recordError(s, text, unwrapRecord(perr))

	case EndTransmission:
		return Flush(s), nil

	default:
		return s, recordError(s, text, ErrUnrecognized)
	}
}

// Reject counts a line that cannot be decoded at all, such as one over
// MaxLineLength, and reports it with cause.
func (r Rules) Reject(s State, text string, cause error) (State, error) {
	s.Line++
	if len(text) > 64 {
		text = text[:64] + "..."
	}
	if s.Done {
		return s, recordError(s, text, ErrFinished)
	}
	return s, recordError(s, text, cause)
}

// Flush ends the stream. An open meal is discarded, never finalized.
func Flush(s State) State {
	if s.Open != nil {
		s.Discarded++
		s.Open = nil
		s.Dish = -1
	}
	s.Done = true
	return s
}

func (r Rules) lookup(id int) (models.FoodGroup, error) {
	if r.Groups == nil {
		return models.FoodGroup{ID: id}, nil
	}
	return r.Groups.Lookup(id)
}

func recordError(s State, text string, err error) error {
	if err == nil {
		return nil
	}
	return &RecordError{Line: s.Line, Text: text, Err: err}
}

// Decoder rebuilds meals from a record stream, one line at a time, by
// stepping a State and logging what each step reported.
type Decoder struct {
	rules  Rules
	logger *slog.Logger
	state  State
}

func NewDecoder(opts ...Option) *Decoder {
	cfg := decodeConfig{loc: time.Local}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Decoder{
		rules:  Rules{Groups: cfg.groups, Location: cfg.loc},
		logger: cfg.logger,
	}
}

// Feed processes one line. The returned error, if any, is a *RecordError
// describing a condition that was recovered from.
func (d *Decoder) Feed(line string) error {
	next, err := d.rules.Step(d.state, line)
	d.commit(next, "meal restarted")
	return d.report(err)
}

// Skip records a line that was not fed, with the reason it was dropped.
func (d *Decoder) Skip(text string, cause error) error {
	next, err := d.rules.Reject(d.state, text, cause)
	d.commit(next, "")
	return d.report(err)
}

// Finish ends the stream. An open meal is discarded, never finalized.
func (d *Decoder) Finish() {
	d.commit(Flush(d.state), "stream ended")
}

// State returns the decoder's current position.
func (d *Decoder) State() State { return d.state }

// Done reports whether the stream has ended.
func (d *Decoder) Done() bool { return d.state.Done }

// Discarded counts meals dropped because they were never closed.
func (d *Decoder) Discarded() int { return d.state.Discarded }

// Meals returns the closed meals decoded so far.
func (d *Decoder) Meals() []models.Meal {
	return append([]models.Meal(nil), d.state.Meals...)
}

// Pending returns a copy of the open meal, if any.
func (d *Decoder) Pending() (models.Meal, bool) {
	if d.state.Open == nil {
		return models.Meal{}, false
	}
	return d.state.Open.Clone(), true
}

func (d *Decoder) Document() models.Document {
	return models.ToDocument(d.state.Meals)
}

func (d *Decoder) commit(next State, reason string) {
	if next.Discarded > d.state.Discarded {
		dishes := 0
		if d.state.Open != nil {
			dishes = len(d.state.Open.Dishes)
		}
		if next.Done && !d.state.Done {
			reason = "stream ended"
		}
		d.logger.Warn("meallog: discarding unclosed meal", "reason", reason, "dishes", dishes, "line", next.Line)
	}
	d.state = next
}

func (d *Decoder) report(err error) error {
	if err == nil {
		return nil
	}
	var re *RecordError
	if errors.As(err, &re) {
		d.logger.Warn("meallog: record problem", "line", re.Line, "record", re.Text, "error", re.Err)
	}
	return err
}

func unwrapRecord(err error) error {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}

// Result is the outcome of decoding a whole stream.
type Result struct {
	Meals      []models.Meal
	Document   models.Document
	Discarded  int
	Terminated bool    // FIN-TRANSMISION was seen
	Problems   []error // recovered *RecordError conditions, in stream order
}

// Decode reads r until FIN-TRANSMISION or EOF. Only a read failure is
// returned as an error; record-level conditions land in Result.Problems.
func Decode(r io.Reader, opts ...Option) (Result, error) {
	d := NewDecoder(opts...)
	var res Result

	lr := NewLineReader(r)
	for !d.Done() {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrLineTooLong) {
			res.Problems = append(res.Problems, d.Skip(line, err))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("decode meal log: %w", err)
		}
		if err := d.Feed(line); err != nil {
			res.Problems = append(res.Problems, err)
		}
		if d.Done() {
			res.Terminated = true
		}
	}
	if !d.Done() {
		d.Finish()
	}

	res.Meals = d.Meals()
	res.Document = d.Document()
	res.Discarded = d.Discarded()
	return res, nil
}

// DecodeLines is Decode over an in-memory slice.
func DecodeLines(lines []string, opts ...Option) Result {
	res, _ := Decode(strings.NewReader(strings.Join(lines, "\n")), opts...)
	return res
}
