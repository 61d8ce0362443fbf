// internal/session/buttons.go
package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrQueueFull = errors.New("button queue full")

type ButtonKind int

const (
	ButtonStartMeal ButtonKind = iota
	ButtonStartDish
	ButtonSelectGroup
	ButtonSaveDish
	ButtonCancelDish
	ButtonFinishMeal
	ButtonTare
)

func (k ButtonKind) String() string {
	switch k {
	case ButtonStartMeal:
		return "start-meal"
	case ButtonStartDish:
		return "start-dish"
	case ButtonSelectGroup:
		return "select-group"
	case ButtonSaveDish:
		return "save-dish"
	case ButtonCancelDish:
		return "cancel-dish"
	case ButtonFinishMeal:
		return "finish-meal"
	case ButtonTare:
		return "tare"
	default:
		return fmt.Sprintf("button(%d)", int(k))
	}
}

// ParseButton maps the names used by String back to kinds.
func ParseButton(name string) (ButtonKind, error) {
	for k := ButtonStartMeal; k <= ButtonTare; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown button %q", name)
}

type ButtonEvent struct {
	Kind  ButtonKind
	Group int // only for ButtonSelectGroup
	At    time.Time
}

// ButtonQueue hands keypad events from the input driver to the main loop.
// Push never blocks.
type ButtonQueue struct {
	ch chan ButtonEvent
}

func NewButtonQueue(size int) *ButtonQueue {
	if size < 1 {
		size = 1
	}
	return &ButtonQueue{ch: make(chan ButtonEvent, size)}
}

func (q *ButtonQueue) Push(ev ButtonEvent) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ButtonQueue) Len() int { return len(q.ch) }

// Apply performs one button event.
func (s *Session) Apply(ev ButtonEvent) error {
	switch ev.Kind {
	case ButtonStartMeal:
		s.StartMeal()
		return nil
	case ButtonStartDish:
		return s.StartDish()
	case ButtonSelectGroup:
		s.SelectGroup(ev.Group)
		return nil
	case ButtonSaveDish:
		return s.SaveDish()
	case ButtonCancelDish:
		s.CancelDish()
		return nil
	case ButtonFinishMeal:
		_, err := s.FinishMeal()
		return err
	case ButtonTare:
		s.RequestTare()
		return nil
	default:
		return fmt.Errorf("apply %s: unsupported", ev.Kind)
	}
}

// Drain applies every queued event in order and returns the failures. It
// does not wait for new events.
func (s *Session) Drain(q *ButtonQueue) []error {
	var errs []error
	for {
		select {
		case ev := <-q.ch:
			if err := s.Apply(ev); err != nil {
				s.logger.Warn("button rejected", "button", ev.Kind.String(), "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", ev.Kind, err))
			}
		default:
			return errs
		}
	}
}
