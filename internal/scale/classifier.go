// internal/scale/classifier.go

// Package scale turns successive stable mass readings into discrete
// weighing events. Classify is pure: callers keep the State and commit the
// returned one.
package scale

import "math"

// Thresholds are in the scale's mass unit (grams).
type Thresholds struct {
	// Noise is the largest |delta| treated as no change.
	Noise float64 `mapstructure:"noise" toml:"noise"`
	// NearZero is the reading below which the scale counts as empty.
	NearZero float64 `mapstructure:"near_zero" toml:"near_zero"`
	// ReleaseTolerance bounds |removed - saved dish mass| for a Release.
	ReleaseTolerance float64 `mapstructure:"release_tolerance" toml:"release_tolerance"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Noise: 1.0, NearZero: 1.0, ReleaseTolerance: 5.0}
}

// State is everything the classifier remembers between samples.
type State struct {
	LastStableMass     float64
	CumulativeRemoved  float64
	DishMassAtLastSave float64
	TareRequested      bool
}

// RequestTare flags that the operator asked for a tare; the next drop to
// near zero is reported as Tare instead of a removal.
func (s State) RequestTare() State {
	s.TareRequested = true
	return s
}

// MarkSaved records the scale mass at the moment a dish was saved and
// restarts removal tracking.
func (s State) MarkSaved(mass float64) State {
	s.DishMassAtLastSave = mass
	s.CumulativeRemoved = 0
	return s
}

func (s State) ClearSaved() State {
	s.DishMassAtLastSave = 0
	s.CumulativeRemoved = 0
	return s
}

// Saved reports whether a saved dish is still expected on the scale.
func (s State) Saved() bool { return s.DishMassAtLastSave > 0 }

// Classify evaluates sample m against s. Samples within the noise band leave
// the state untouched so that slow drift cannot move the baseline.
func Classify(th Thresholds, s State, m float64) (State, Result) {
	delta := m - s.LastStableMass
	res := Result{Event: None, Delta: delta, Mass: m}
	if math.Abs(delta) <= th.Noise {
		return s, res
	}

	next := s
	next.LastStableMass = m

	if delta > 0 {
		if s.LastStableMass <= -th.NearZero {
			res.Event = Tare
			next.TareRequested = false
			return next, res
		}
		res.Event = Increment
		next.CumulativeRemoved = 0
		return next, res
	}

	// Without a saved dish a drop that leaves mass on the scale is the
	// operator taking back part of the current entry.
	if m > th.NearZero && !s.Saved() {
		res.Event = Decrement
		return next, res
	}
	if m <= th.NearZero && s.TareRequested {
		res.Event = Tare
		next.TareRequested = false
		return next, res
	}

	next.CumulativeRemoved += -delta
	if math.Abs(next.CumulativeRemoved-s.DishMassAtLastSave) < th.ReleaseTolerance || m < th.NearZero {
		res.Event = Release
		next = next.ClearSaved()
		return next, res
	}
	res.Event = Remove
	return next, res
}

// Classifier is a stateful convenience wrapper around Classify for callers
// that do not need to inspect intermediate states.
type Classifier struct {
	Thresholds Thresholds
	State      State
}

func New(th Thresholds) *Classifier {
	return &Classifier{Thresholds: th}
}

// Feed classifies m and commits the resulting state.
func (c *Classifier) Feed(m float64) Result {
	var res Result
	c.State, res = Classify(c.Thresholds, c.State, m)
	return res
}
