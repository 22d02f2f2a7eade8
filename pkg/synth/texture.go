package synth

import "math"

const textureLayerGain = 0.4

// TextureLayer is a filtered noise bed, slowly amplitude-modulated by a
// triangle LFO whose rate tracks motion.
type TextureLayer struct {
	noise *noiseGen

	warmthSmoother  *Smoother
	motionSmoother  *Smoother
	densitySmoother *Smoother

	filtered  float64
	lfoPhase  float64
}

// NewTextureLayer builds a texture layer seeded from seed.
func NewTextureLayer(seed uint64) *TextureLayer {
	return &TextureLayer{
		noise:           newNoiseGen(seed),
		warmthSmoother:  NewSmoother(0.001),
		motionSmoother:  NewSmoother(0.001),
		densitySmoother: NewSmoother(0.005),
	}
}

// Process returns one filtered, amplitude-modulated noise sample.
func (t *TextureLayer) Process(p Params) float64 {
	brightness := t.warmthSmoother.Step(p.Brightness)
	motion := t.motionSmoother.Step(p.Motion)
	density := t.densitySmoother.Step(p.Texture)

	// brightness = 1 - warmth*0.5, so the cutoff (brightness itself) falls
	// as warmth rises: warmer is darker.
	cutoff := clamp(brightness, 0.001, 1)
	t.filtered += cutoff * (t.noise.next() - t.filtered)

	lfoHz := 0.01 + motion*0.09
	t.lfoPhase += twoPi * lfoHz / p.SampleRate
	if t.lfoPhase >= twoPi {
		t.lfoPhase -= twoPi
	}
	lfo := triangle(t.lfoPhase)

	sample := t.filtered * lfo * density * textureLayerGain
	return finiteOrZero(sample)
}

// triangle returns a triangle wave in [0, 1] for phase in [0, 2pi).
func triangle(phase float64) float64 {
	x := phase / twoPi
	return 1 - math.Abs(2*x-1)
}
