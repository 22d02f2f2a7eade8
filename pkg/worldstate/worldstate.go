// Package worldstate holds the normalized scalar state vector, the scene
// baseline table, and freeze bookkeeping for the world engine. The registry
// shape mirrors the teacher's genre registry (register-then-lookup-by-id).
package worldstate

import (
	"golang.org/x/text/cases"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// State is the mutable world vector. Every field is constrained to [0, 1]
// and clamped at the point of write.
type State struct {
	Density        float64
	Rhythm         float64
	Tension        float64
	Energy         float64
	Warmth         float64
	SparkleImpulse float64
}

// Default returns a WorldState with every field at 0.5 (sparkle_impulse at 0).
func Default() State {
	return State{
		Density: 0.5,
		Rhythm:  0.5,
		Tension: 0.5,
		Energy:  0.5,
		Warmth:  0.5,
	}
}

// Clamp returns s with every field constrained to [0, 1].
func (s State) Clamp() State {
	s.Density = clamp01(s.Density)
	s.Rhythm = clamp01(s.Rhythm)
	s.Tension = clamp01(s.Tension)
	s.Energy = clamp01(s.Energy)
	s.Warmth = clamp01(s.Warmth)
	s.SparkleImpulse = clamp01(s.SparkleImpulse)
	return s
}

// Scene is an immutable named baseline for the five steady fields.
// sparkle_impulse has no baseline — it is transient.
type Scene struct {
	ID       string
	Density  float64
	Rhythm   float64
	Tension  float64
	Energy   float64
	Warmth   float64
}

// Table is a registry of scenes keyed by a case-folded id.
type Table struct {
	scenes map[string]Scene
	caser  cases.Caser
}

// NewTable builds an empty scene table.
func NewTable() *Table {
	return &Table{
		scenes: make(map[string]Scene),
		caser:  cases.Fold(),
	}
}

func (t *Table) key(id string) string {
	return t.caser.String(id)
}

// Register adds or replaces a scene in the table.
func (t *Table) Register(s Scene) {
	t.scenes[t.key(s.ID)] = s
}

// Get looks up a scene by id, case-insensitively.
func (t *Table) Get(id string) (Scene, bool) {
	s, ok := t.scenes[t.key(id)]
	return s, ok
}

// DefaultTable returns a scene table pre-populated with the four baseline
// scenes named in the world engine's scene table.
func DefaultTable() *Table {
	t := NewTable()
	t.Register(Scene{ID: "default", Density: 0.5, Rhythm: 0.5, Tension: 0.5, Energy: 0.5, Warmth: 0.5})
	t.Register(Scene{ID: "peaceful", Density: 0.3, Rhythm: 0.2, Tension: 0.1, Energy: 0.2, Warmth: 0.8})
	t.Register(Scene{ID: "energetic", Density: 0.8, Rhythm: 0.9, Tension: 0.6, Energy: 0.9, Warmth: 0.5})
	t.Register(Scene{ID: "mysterious", Density: 0.2, Rhythm: 0.3, Tension: 0.8, Energy: 0.3, Warmth: 0.2})
	return t
}

// FreezeState is either inactive or active until a tick deadline.
type FreezeState struct {
	Active   bool
	UntilTick uint64
}

// Inactive is the zero-value freeze state.
func Inactive() FreezeState {
	return FreezeState{}
}

// ActiveUntil returns a freeze state active until untilTick (exclusive,
// per the world engine's tick-handling rule).
func ActiveUntil(untilTick uint64) FreezeState {
	return FreezeState{Active: true, UntilTick: untilTick}
}
