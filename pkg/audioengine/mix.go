package audioengine

import (
	"github.com/opd-ai/ambientworld/pkg/paramblock"
	"github.com/opd-ai/ambientworld/pkg/synth"
)

// mixer runs every layer in a fixed order, sums and gain-scales the result,
// and applies the soft limiter. It owns no synchronization — it is called
// exclusively from the audio callback thread.
type mixer struct {
	block      *paramblock.Block
	layers     []synth.Layer
	sampleRate float64
	volumeCeil float64
}

func newMixer(block *paramblock.Block, sampleRate, volumeCeil float64, layers ...synth.Layer) *mixer {
	return &mixer{block: block, layers: layers, sampleRate: sampleRate, volumeCeil: volumeCeil}
}

// next produces one mixed, limited sample in [-1, 1].
func (m *mixer) next() float64 {
	snap := m.block.LoadAll()
	p := synth.Params{
		MasterGain:     float64(snap.MasterGain),
		BaseFreqHz:     float64(snap.BaseFreqHz),
		DetuneRatio:    float64(snap.DetuneRatio),
		Brightness:     float64(snap.Brightness),
		Motion:         float64(snap.Motion),
		Texture:        float64(snap.Texture),
		SparkleImpulse: float64(snap.SparkleImpulse),
		SampleRate:     m.sampleRate,
	}

	sample := 0.0
	for _, layer := range m.layers {
		sample += layer.Process(p)
	}

	gain := p.MasterGain
	if gain > 1.0 {
		gain = 1.0
	}
	gain *= m.volumeCeil
	sample *= gain

	return softLimit(sample)
}
