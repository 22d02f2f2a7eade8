package synth

const (
	sparkleLayerGain  = 0.6
	sparkleTriggerMin = 0.02
	sparkleDurationMS = 100
)

// SparkleLayer emits a short noise burst shaped by an attack/decay envelope
// whenever smoothed sparkle_impulse crosses sparkleTriggerMin from below.
type SparkleLayer struct {
	noise *noiseGen

	impulseSmoother *Smoother
	prevSmoothed    float64

	envelopeActive bool
	envelopePhase  float64 // [0, 1] over the life of the envelope
	envelopeStep   float64 // advance per sample, set from sample rate
	lastSampleRate float64
}

// NewSparkleLayer builds a sparkle layer seeded from seed.
func NewSparkleLayer(seed uint64) *SparkleLayer {
	return &SparkleLayer{
		noise:           newNoiseGen(seed),
		impulseSmoother: NewSmoother(0.01),
	}
}

// Process returns one envelope-shaped noise sample, triggered by a rising
// edge on the smoothed sparkle_impulse parameter.
func (s *SparkleLayer) Process(p Params) float64 {
	smoothed := s.impulseSmoother.Step(p.SparkleImpulse)

	if p.SampleRate != s.lastSampleRate && p.SampleRate > 0 {
		s.lastSampleRate = p.SampleRate
		s.envelopeStep = 1000.0 / (sparkleDurationMS * p.SampleRate)
	}

	triggered := smoothed >= sparkleTriggerMin && s.prevSmoothed < sparkleTriggerMin
	s.prevSmoothed = smoothed

	if triggered && !s.envelopeActive {
		s.envelopeActive = true
		s.envelopePhase = 0
	}

	env := 0.0
	if s.envelopeActive {
		env = sparkleEnvelope(s.envelopePhase)
		s.envelopePhase += s.envelopeStep
		if s.envelopePhase >= 1 {
			s.envelopeActive = false
			s.envelopePhase = 0
		}
	}

	sample := env * s.noise.next() * smoothed * sparkleLayerGain
	return finiteOrZero(sample)
}

// sparkleEnvelope is a linear attack over the first 10% of phase and a
// linear decay over the remaining 90%, clamped at 0.
func sparkleEnvelope(phase float64) float64 {
	if phase < 0 {
		return 0
	}
	if phase <= 0.1 {
		return phase / 0.1
	}
	if phase >= 1 {
		return 0
	}
	v := 1 - (phase-0.1)/0.9
	return clamp(v, 0, 1)
}
