// internal/scale/event.go
package scale

// Event is the outcome of classifying one stable sample.
type Event int

const (
	None Event = iota
	// Increment: mass was added on top of the last stable reading.
	Increment
	// Decrement: mass went down but something is still on the scale.
	Decrement
	// Remove: part of a saved dish was lifted off; the dish is not gone yet.
	Remove
	// Release: the saved dish, or whatever was on the scale, has been lifted off.
	Release
	// Tare: the scale was zeroed, not emptied.
	Tare
)

func (e Event) String() string {
	switch e {
	case None:
		return "none"
	case Increment:
		return "increment"
	case Decrement:
		return "decrement"
	case Remove:
		return "remove"
	case Release:
		return "release"
	case Tare:
		return "tare"
	default:
		return "unknown"
	}
}

// Result is what Classify reports for a sample. Delta is the signed change
// against the previous stable mass.
type Result struct {
	Event Event
	Delta float64
	Mass  float64
}
