package worldengine

// AudioParams is the pure projection of a Snapshot onto synthesis
// parameters (§4.5 projection table).
type AudioParams struct {
	MasterGain     float64
	BaseFreqHz     float64
	DetuneRatio    float64
	Brightness     float64
	Motion         float64
	Texture        float64
	SparkleImpulse float64
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Project is a pure function mapping a Snapshot to AudioParams. It has no
// side effects and performs no I/O.
func Project(snap Snapshot) AudioParams {
	w := snap.World
	return AudioParams{
		MasterGain:     clampRange(w.Energy*0.2, 0, 1),
		BaseFreqHz:     clampRange(80+w.Warmth*160, 80, 240),
		DetuneRatio:    clampRange(1+w.Tension*0.01, 0.5, 2.0),
		Brightness:     clampRange(1-w.Warmth*0.5, 0, 1),
		Motion:         clampRange(w.Rhythm*0.5, 0, 1),
		Texture:        clampRange(w.Density*0.3, 0, 1),
		SparkleImpulse: clampRange(w.SparkleImpulse, 0, 1),
	}
}
