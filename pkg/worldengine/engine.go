// Package worldengine implements the deterministic, event-driven state
// machine: event application, per-tick decay toward a scene baseline,
// sparkle generation, and snapshot publication.
package worldengine

import (
	"github.com/opd-ai/ambientworld/pkg/rng"
	"github.com/opd-ai/ambientworld/pkg/worldstate"
)

// decayCoeff is the per-tick decay coefficient alpha toward the scene baseline.
const decayCoeff = 0.01

// Snapshot is an immutable value published after every applied event.
type Snapshot struct {
	World     worldstate.State
	SceneName string
	Tick      uint64
}

// Engine owns the world state and evolves it from Events. It is exclusively
// owned by the world task: no internal synchronization is provided.
type Engine struct {
	state worldstate.State
	table *worldstate.Table
	scene string
	tick  uint64
	phase float64
	freeze worldstate.FreezeState
	rng   *rng.RNG

	tickHz float64
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithTable overrides the scene table (default: worldstate.DefaultTable()).
func WithTable(t *worldstate.Table) Option {
	return func(e *Engine) { e.table = t }
}

// WithScene sets the starting scene id (default: "default").
func WithScene(name string) Option {
	return func(e *Engine) { e.scene = name }
}

// WithState sets the starting world state (default: worldstate.Default()).
func WithState(s worldstate.State) Option {
	return func(e *Engine) { e.state = s }
}

// WithTickHz sets the simulation tick rate, used to convert Freeze{seconds}
// into a tick deadline. Default 20.
func WithTickHz(hz float64) Option {
	return func(e *Engine) { e.tickHz = hz }
}

// New builds a world engine seeded deterministically from seed.
func New(seed int64, opts ...Option) *Engine {
	e := &Engine{
		state:  worldstate.Default(),
		table:  worldstate.DefaultTable(),
		scene:  "default",
		tickHz: 20,
		rng:    rng.NewRNG(seed),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick returns the current tick counter.
func (e *Engine) Tick() uint64 { return e.tick }

// Snapshot returns the current state as an immutable Snapshot.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{World: e.state, SceneName: e.scene, Tick: e.tick}
}

// Apply consumes one Event, mutating internal state and returning the
// resulting Snapshot. Unknown scene names must be rejected by the caller
// (session layer) before reaching Apply.
func (e *Engine) Apply(ev Event) Snapshot {
	switch ev.Kind {
	case EventTick:
		e.applyTick()
	case EventPerformAction:
		e.applyAction(ev.Action, ev.Intensity)
	case EventPerformScene:
		e.scene = ev.SceneName
	case EventPerformFreeze:
		e.applyFreeze(ev.FreezeSeconds)
	}
	return e.Snapshot()
}

func (e *Engine) applyAction(action ActionKind, intensity float64) {
	s := e.state
	switch action {
	case Pulse:
		s.Energy += 0.3 * intensity
		s.Rhythm += 0.1 * intensity
	case Calm:
		s.Tension -= 0.3 * intensity
		s.Energy -= 0.1 * intensity
	case Stir:
		s.Density += 0.2 * intensity
		s.Rhythm += 0.1 * intensity
	case Tense:
		s.Tension += 0.3 * intensity
	case Heat:
		s.Warmth += 0.2 * intensity
		s.Energy += 0.1 * intensity
	}
	e.state = s.Clamp()
}

func (e *Engine) applyFreeze(seconds float64) {
	if seconds > 0 {
		deadline := e.tick + uint64(seconds*e.tickHz)
		e.freeze = worldstate.ActiveUntil(deadline)
		return
	}
	e.freeze = worldstate.Inactive()
}

func (e *Engine) applyTick() {
	e.tick++

	if e.freeze.Active {
		if e.tick < e.freeze.UntilTick {
			return
		}
		e.freeze = worldstate.Inactive()
	}

	e.decay()
	e.sparkle()
}

func (e *Engine) decay() {
	baseline, ok := e.table.Get(e.scene)
	if !ok {
		return
	}
	s := e.state
	s.Density += decayCoeff * (baseline.Density - s.Density)
	s.Rhythm += decayCoeff * (baseline.Rhythm - s.Rhythm)
	s.Tension += decayCoeff * (baseline.Tension - s.Tension)
	s.Energy += decayCoeff * (baseline.Energy - s.Energy)
	s.Warmth += decayCoeff * (baseline.Warmth - s.Warmth)
	e.state = s.Clamp()
}

// sparkleJitter is the amplitude of the seeded randomization applied to a
// triggered sparkle's magnitude, keeping the base formula's shape while
// making every trigger sound distinct. Bounded to preserve determinism per
// §9 ("deterministic given the RNG seed and event sequence").
const sparkleJitter = 0.15

func (e *Engine) sparkle() {
	s := e.state
	e.phase += s.Rhythm * 0.1

	threshold := 1 - s.Rhythm*s.Density
	if e.phase >= threshold {
		e.phase = 0
		jitter := 1 + sparkleJitter*(2*e.rng.Float64()-1)
		s.SparkleImpulse = s.Density * (0.5 + 0.5*s.Rhythm) * jitter
	} else {
		s.SparkleImpulse *= 0.8
	}
	e.state = s.Clamp()
}
