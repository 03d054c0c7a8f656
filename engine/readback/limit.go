package readback

import "fmt"

// Limit is an instance's repeat policy: a finite number of readbacks, or no bound at all.
type Limit struct {
	finite bool
	count  uint64
}

// Finite returns a Limit allowing n completed readbacks. Finite(0) never dispatches.
func Finite(n uint64) Limit {
	return Limit{finite: true, count: n}
}

// Infinite returns a Limit that repeats every frame forever.
func Infinite() Limit {
	return Limit{}
}

// IsInfinite reports whether the limit has no bound.
func (l Limit) IsInfinite() bool {
	return !l.finite
}

// Count returns the number of readbacks a finite limit allows, or 0 for Infinite.
func (l Limit) Count() uint64 {
	return l.count
}

func (l Limit) String() string {
	if !l.finite {
		return "Infinite"
	}
	return fmt.Sprintf("Finite(%d)", l.count)
}
