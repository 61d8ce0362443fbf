// internal/meallog/log.go
package meallog

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Log is the append-only record list mirroring the meal in progress. Only
// the dish-level truncations below ever remove records.
type Log struct {
	records []Record
}

// Open reports whether the log holds a meal without FIN-COMIDA.
func (l *Log) Open() bool {
	for i := len(l.records) - 1; i >= 0; i-- {
		switch l.records[i].Kind {
		case StartMeal:
			return true
		case EndMeal:
			return false
		}
	}
	return false
}

// StartMeal appends INICIO-COMIDA unless a meal is already open.
func (l *Log) StartMeal() bool {
	if l.Open() {
		return false
	}
	l.records = append(l.records, Record{Kind: StartMeal})
	return true
}

// StartDish appends INICIO-PLATO unless the last record already is one.
func (l *Log) StartDish() bool {
	if n := len(l.records); n > 0 && l.records[n-1].Kind == StartDish {
		return false
	}
	l.records = append(l.records, Record{Kind: StartDish})
	return true
}

func (l *Log) AddIngredient(group int, weight float64) {
	l.records = append(l.records, Record{Kind: Ingredient, Group: group, Weight: weight})
}

// DropLastIngredient removes the trailing ALIMENTO record, if there is one.
func (l *Log) DropLastIngredient() bool {
	n := len(l.records)
	if n == 0 || l.records[n-1].Kind != Ingredient {
		return false
	}
	l.records = l.records[:n-1]
	return true
}

// CancelDish truncates the log back through the most recent INICIO-PLATO of
// the open meal and returns how many records were removed.
func (l *Log) CancelDish() int {
	for i := len(l.records) - 1; i >= 0; i-- {
		switch l.records[i].Kind {
		case StartDish:
			removed := len(l.records) - i
			l.records = l.records[:i]
			return removed
		case StartMeal, EndMeal:
			return 0
		}
	}
	return 0
}

// EndMeal appends FIN-COMIDA stamped with at.
func (l *Log) EndMeal(at time.Time) {
	l.records = append(l.records, Record{Kind: EndMeal, At: at})
}

func (l *Log) Clear() {
	l.records = nil
}

func (l *Log) Len() int { return len(l.records) }

func (l *Log) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Last returns the trailing record.
func (l *Log) Last() (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[len(l.records)-1], true
}

func (l *Log) Lines() []string {
	lines := make([]string, 0, len(l.records))
	for _, r := range l.records {
		lines = append(lines, r.String())
	}
	return lines
}

func (l *Log) String() string {
	var b strings.Builder
	_, _ = l.WriteTo(&b)
	return b.String()
}

// WriteTo writes one newline-terminated record per line.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, r := range l.records {
		n, err := io.WriteString(w, r.String()+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadLog replays a persisted log. Blank lines are skipped; an unrecognized
// line or a transmission terminator is an error since a stored log never
// contains either.
func ReadLog(r io.Reader, loc *time.Location) (*Log, error) {
	l := &Log{}
	lr := NewLineReader(r)
	lineNo := 0
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		if errors.Is(err, ErrLineTooLong) {
			return nil, fmt.Errorf("read log: %w", &RecordError{Line: lineNo, Err: err})
		}
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		rec, err := ParseRecord(text, loc)
		if rec.Kind == Unknown || rec.Kind == EndTransmission {
			if err == nil {
				err = &RecordError{Text: text, Err: ErrUnrecognized}
			}
			if re, ok := err.(*RecordError); ok {
				re.Line = lineNo
			}
			return nil, fmt.Errorf("read log: %w", err)
		}
		l.records = append(l.records, rec)
	}
	return l, nil
}
