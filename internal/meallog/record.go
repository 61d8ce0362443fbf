// internal/meallog/record.go

// Package meallog implements the line protocol the scale uses to shadow a
// meal in progress and to hand finished meals to the companion device.
//
//	INICIO-COMIDA
//	INICIO-PLATO
//	ALIMENTO,<group>,<weight>
//	FIN-COMIDA,<DD.MM.YYYY>,<HH:MM:SS>
//
// A transmission ends with FIN-TRANSMISION, which is not part of the meal
// grammar.
package meallog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TagStartMeal       = "INICIO-COMIDA"
	TagStartDish       = "INICIO-PLATO"
	TagIngredient      = "ALIMENTO"
	TagEndMeal         = "FIN-COMIDA"
	TagEndTransmission = "FIN-TRANSMISION"

	dateLayout = "02.01.2006"
	timeLayout = "15:04:05"
)

var (
	ErrMalformedField = errors.New("malformed field")
	ErrOutOfOrder     = errors.New("record out of order")
	ErrUnrecognized   = errors.New("unrecognized record")
	ErrFinished       = errors.New("record after end of transmission")
)

type Kind int

const (
	Unknown Kind = iota
	StartMeal
	StartDish
	Ingredient
	EndMeal
	EndTransmission
)

func (k Kind) String() string {
	switch k {
	case StartMeal:
		return TagStartMeal
	case StartDish:
		return TagStartDish
	case Ingredient:
		return TagIngredient
	case EndMeal:
		return TagEndMeal
	case EndTransmission:
		return TagEndTransmission
	default:
		return "UNKNOWN"
	}
}

// Record is one parsed line. Group and Weight are set for Ingredient, At for
// EndMeal. Raw keeps the line as received for Unknown records.
type Record struct {
	Kind   Kind
	Group  int
	Weight float64
	At     time.Time
	Raw    string
}

// String renders the canonical wire form.
func (r Record) String() string {
	switch r.Kind {
	case Ingredient:
		return fmt.Sprintf("%s,%d,%.2f", TagIngredient, r.Group, r.Weight)
	case EndMeal:
		return fmt.Sprintf("%s,%s,%s", TagEndMeal, r.At.Format(dateLayout), r.At.Format(timeLayout))
	case Unknown:
		return r.Raw
	default:
		return r.Kind.String()
	}
}

// RecordError reports a recoverable problem with one line of a stream.
type RecordError struct {
	Line int
	Text string
	Err  error
}

func (e *RecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("%q: %v", e.Text, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// ParseRecord parses one line. Numeric fields that fail to parse are set to
// zero and reported with ErrMalformedField; the record is still returned.
// FIN-COMIDA dates are read in loc (time.Local when nil).
func ParseRecord(line string, loc *time.Location) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	tag := strings.TrimSpace(fields[0])

	switch tag {
	case TagStartMeal:
		return Record{Kind: StartMeal}, nil
	case TagStartDish:
		return Record{Kind: StartDish}, nil
	case TagEndTransmission:
		return Record{Kind: EndTransmission}, nil
	case TagIngredient:
		return parseIngredient(line, fields)
	case TagEndMeal:
		return parseEndMeal(line, fields, loc)
	default:
		return Record{Kind: Unknown, Raw: line}, &RecordError{Text: line, Err: ErrUnrecognized}
	}
}

func parseIngredient(line string, fields []string) (Record, error) {
	rec := Record{Kind: Ingredient}
	var bad []string

	if len(fields) > 1 {
		g, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err == nil {
			rec.Group = g
		} else {
			bad = append(bad, "group")
		}
	} else {
		bad = append(bad, "group")
	}

	if len(fields) > 2 {
		w, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err == nil {
			rec.Weight = w
		} else {
			bad = append(bad, "weight")
		}
	} else {
		bad = append(bad, "weight")
	}

	if len(bad) > 0 {
		return rec, &RecordError{Text: line, Err: fmt.Errorf("%w: %s", ErrMalformedField, strings.Join(bad, ", "))}
	}
	return rec, nil
}

func parseEndMeal(line string, fields []string, loc *time.Location) (Record, error) {
	rec := Record{Kind: EndMeal}
	if loc == nil {
		loc = time.Local
	}
	if len(fields) < 3 {
		return rec, &RecordError{Text: line, Err: fmt.Errorf("%w: date/time missing", ErrMalformedField)}
	}

	date := strings.TrimSpace(fields[1])
	clock := strings.TrimSpace(fields[2])
	day, okD := fixedInt(date, 0, 2)
	month, okM := fixedInt(date, 3, 5)
	year, okY := fixedInt(date, 6, 10)
	hour, okH := fixedInt(clock, 0, 2)
	minute, okMin := fixedInt(clock, 3, 5)
	second, okS := fixedInt(clock, 6, 8)
	if !(okD && okM && okY && okH && okMin && okS) {
		return rec, &RecordError{Text: line, Err: fmt.Errorf("%w: date/time", ErrMalformedField)}
	}

	at := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if at.Day() != day || int(at.Month()) != month || at.Hour() != hour || at.Minute() != minute || at.Second() != second {
		return rec, &RecordError{Text: line, Err: fmt.Errorf("%w: date/time out of range", ErrMalformedField)}
	}
	rec.At = at
	return rec, nil
}

func fixedInt(s string, from, to int) (int, bool) {
	if len(s) < to {
		return 0, false
	}
	n, err := strconv.Atoi(s[from:to])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
