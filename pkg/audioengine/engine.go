// Package audioengine selects an output device and stream configuration,
// installs the real-time callback, and keeps the stream alive for the life
// of the process. It depends only on the shared parameter block — it has no
// knowledge of the world engine.
package audioengine

import (
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ambientworld/pkg/paramblock"
	"github.com/opd-ai/ambientworld/pkg/synth"
)

// SampleFormat names the PCM encoding written to the device buffer.
type SampleFormat int

const (
	FormatFloat32 SampleFormat = iota
	FormatInt16Signed
	FormatInt16Unsigned
)

// Config configures device/stream selection.
type Config struct {
	// BlockFrames is the requested frames-per-buffer for the output stream.
	BlockFrames int
	// HighLatency selects the device's default high-latency suggestion
	// instead of its default low-latency one, useful on headless/CI hosts whose
	// low-latency path is unreliable.
	HighLatency bool
	// VolumeLimit is an operator-facing ceiling multiplied into master_gain
	// before the soft limiter, independent of the world-derived gain. Zero
	// is treated as unset and defaults to 1.0 (no extra attenuation).
	VolumeLimit float64
	Log         *logrus.Logger
}

// Engine owns a running output stream.
type Engine struct {
	stream     *portaudio.Stream
	block      *paramblock.Block
	sampleRate float64
	format     SampleFormat
	log        *logrus.Logger
}

// New selects a device/stream configuration, builds the synthesis layers,
// and opens (but does not yet start) the output stream. Fatal at startup:
// no device, no acceptable configuration, or stream construction failure
// all return a non-nil error and abort construction.
func New(cfg Config, block *paramblock.Block, seed uint64) (*Engine, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audioengine: portaudio init: %w", err)
	}

	dev, err := portaudio.DefaultOutputDevice()
	if err != nil || dev == nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audioengine: no default output device: %w", err)
	}

	sampleRate := dev.DefaultSampleRate
	if sampleRate <= 0 {
		portaudio.Terminate()
		return nil, fmt.Errorf("audioengine: device %q advertises no sample rate", dev.Name)
	}

	blockFrames := cfg.BlockFrames
	if blockFrames <= 0 {
		blockFrames = 512
	}

	latency := portaudio.LatencyLow
	if cfg.HighLatency {
		latency = dev.DefaultHighOutputLatency
	} else {
		latency = dev.DefaultLowOutputLatency
	}

	channels := dev.MaxOutputChannels
	if channels <= 0 {
		channels = 2
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: blockFrames,
	}

	volumeCeil := cfg.VolumeLimit
	if volumeCeil <= 0 {
		volumeCeil = 1.0
	}

	layers := []synth.Layer{
		synth.NewDroneLayer(),
		synth.NewTextureLayer(seed),
		synth.NewSparkleLayer(seed ^ 0x5bd1e995),
	}
	mix := newMixer(block, sampleRate, volumeCeil, layers...)

	e := &Engine{block: block, sampleRate: sampleRate, log: log}

	// Configuration selection: prefer 32-bit float, then 16-bit signed, then
	// 16-bit unsigned, all at the device's maximum advertised rate. Each
	// format picks a distinct callback variant sharing the mixer's inner
	// loop; they differ only in the final write.
	attempts := []struct {
		format   SampleFormat
		open     func() (*portaudio.Stream, error)
	}{
		{FormatFloat32, func() (*portaudio.Stream, error) {
			return portaudio.OpenStream(params, floatCallback(mix, channels))
		}},
		{FormatInt16Signed, func() (*portaudio.Stream, error) {
			return portaudio.OpenStream(params, int16Callback(mix, channels))
		}},
		{FormatInt16Unsigned, func() (*portaudio.Stream, error) {
			return portaudio.OpenStream(params, uint16Callback(mix, channels))
		}},
	}

	var lastErr error
	for _, a := range attempts {
		stream, err := a.open()
		if err != nil {
			lastErr = err
			log.WithFields(logrus.Fields{"format": a.format, "error": err}).Debug("audioengine: stream configuration rejected")
			continue
		}
		e.stream = stream
		e.format = a.format
		break
	}
	if e.stream == nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audioengine: no acceptable stream configuration: %w", lastErr)
	}

	log.WithFields(logrus.Fields{
		"device":      dev.Name,
		"sample_rate": sampleRate,
		"format":      e.format,
		"channels":    channels,
	}).Info("audioengine: stream configured")

	return e, nil
}

// Start begins streaming. Runtime stream errors after Start are delivered to
// the host's error callback and logged; this core does not rebuild the
// stream on a runtime error.
func (e *Engine) Start() error {
	if err := e.stream.Start(); err != nil {
		return fmt.Errorf("audioengine: start stream: %w", err)
	}
	return nil
}

// Stop halts the stream and closes the underlying device. Dropped last in
// process shutdown order, after every cooperative task has exited.
func (e *Engine) Stop() error {
	if e.stream == nil {
		return nil
	}
	if err := e.stream.Stop(); err != nil {
		e.log.WithError(err).Warn("audioengine: stream stop")
	}
	if err := e.stream.Close(); err != nil {
		e.log.WithError(err).Warn("audioengine: stream close")
	}
	return portaudio.Terminate()
}

func floatCallback(mix *mixer, channels int) func(out []float32) {
	return func(out []float32) {
		frames := len(out) / channels
		for f := 0; f < frames; f++ {
			sample := float32(mix.next())
			for c := 0; c < channels; c++ {
				out[f*channels+c] = sample
			}
		}
	}
}

func int16Callback(mix *mixer, channels int) func(out []int16) {
	return func(out []int16) {
		frames := len(out) / channels
		for f := 0; f < frames; f++ {
			sample := int16(clampF(mix.next(), -1, 1) * math.MaxInt16)
			for c := 0; c < channels; c++ {
				out[f*channels+c] = sample
			}
		}
	}
}

func uint16Callback(mix *mixer, channels int) func(out []uint16) {
	return func(out []uint16) {
		frames := len(out) / channels
		for f := 0; f < frames; f++ {
			scaled := (clampF(mix.next(), -1, 1) + 1) / 2 // [0, 1]
			sample := uint16(scaled * math.MaxUint16)
			for c := 0; c < channels; c++ {
				out[f*channels+c] = sample
			}
		}
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
