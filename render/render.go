// Package render records the output of a graph.System offline, faster than
// real time, into an audio sink.
package render

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/transport"
)

type (
	// SinkFactory creates the sink the rendered audio is fed to. It is called
	// after the graph has been switched to offline rendering.
	SinkFactory func() (plink.AudioSink, error)

	// Driver decides how long to render: it calls advance once for every
	// buffer to be rendered, and returns when done.
	Driver func(advance func())

	// RunoutMode tells what to do after the driver returns. It is either
	// RunoutNone or RunoutToSilence.
	RunoutMode interface {
		isRunoutMode()
	}

	// RunoutNone stops rendering as soon as the driver returns.
	RunoutNone struct{}

	// RunoutToSilence keeps rendering after the driver returns, to capture
	// decaying tails, until BufferThreshold consecutive buffers have been
	// silent or MaxExtraFrames more buffers have been rendered.
	RunoutToSilence struct {
		BufferThreshold int `yaml:"bufferThreshold"`
		MaxExtraFrames  int `yaml:"maxExtraFrames"`
	}

	// Result summarizes a render.
	Result struct {
		Frames        int64 // frames fed to the sink
		Buffers       int   // buffers fed to the sink
		RunoutBuffers int   // buffers rendered after the driver returned
		FailedFrames  int   // buffers that failed to render and were skipped
	}

	Option func(*options)

	options struct {
		logger    logrus.FieldLogger
		threshold float32
	}
)

// SilenceThreshold is the default peak level below which a buffer counts as
// silent: about one least significant bit of 16-bit audio.
const SilenceThreshold = 3e-5

func (RunoutNone) isRunoutMode()      {}
func (RunoutToSilence) isRunoutMode() {}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithSilenceThreshold overrides SilenceThreshold.
func WithSilenceThreshold(v float32) Option {
	return func(o *options) { o.threshold = v }
}

// Render switches sys to offline rendering, lets driver pull buffers into a
// sink made by newSink, applies the run-out and finally switches sys back to
// playing and restarts it. The restoration is done even if rendering fails;
// its failures are logged and not returned. Render blocks until done, so
// call it from a worker goroutine, not the control context.
func Render(sys *graph.System, newSink SinkFactory, mode RunoutMode, driver Driver, opts ...Option) (res Result, err error) {
	o := options{logger: sys.Logger(), threshold: SilenceThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	defer restore(sys, o.logger)
	if err := sys.Stop(); err != nil {
		return res, err
	}
	if err := sys.Uninitialize(); err != nil {
		return res, err
	}
	if err := sys.SetOutputMode(graph.OfflineRender); err != nil {
		return res, err
	}
	if err := sys.Initialize(); err != nil {
		return res, err
	}
	sink, err := newSink()
	if err != nil {
		return res, fmt.Errorf("could not create sink: %w", err)
	}
	ctx := NewRenderContext(sys, sink, o.threshold, o.logger)
	driver(ctx.RenderFrame)
	if r, ok := mode.(RunoutToSilence); ok {
		ctx.isRunout = true
		for ctx.Silence().Count < r.BufferThreshold && res.RunoutBuffers < r.MaxExtraFrames {
			ctx.RenderFrame()
			res.RunoutBuffers++
		}
	}
	res.Frames, res.Buffers, res.FailedFrames = ctx.frames, ctx.buffers, ctx.failed
	if err := sink.Close(); err != nil {
		return res, fmt.Errorf("could not close sink: %w", err)
	}
	o.logger.WithFields(logrus.Fields{
		"frames":  res.Frames,
		"runout":  res.RunoutBuffers,
		"failed":  res.FailedFrames,
		"end":     ctx.Time().SampleTime,
		"seconds": float64(res.Frames) / float64(sys.SampleRate()),
	}).Info("render finished")
	return res, nil
}

func restore(sys *graph.System, logger logrus.FieldLogger) {
	steps := []struct {
		name string
		f    func() error
	}{
		{"stop", sys.Stop},
		{"uninitialize", sys.Uninitialize},
		{"switch to play", func() error { return sys.SetOutputMode(graph.Play) }},
		{"initialize", sys.Initialize},
		{"start", sys.Start},
	}
	for _, s := range steps {
		if err := s.f(); err != nil {
			logger.WithError(err).WithField("step", s.name).Error("could not restore playback after rendering")
		}
	}
}

// ScoreDriver returns a Driver rendering enough buffers to play score up to
// its last cue, plus one beat, at the given tempo.
func ScoreDriver(score plink.Score, bpm float64, sampleRate, framesPerBuffer int) Driver {
	ticks := score.End().Add(plink.Beats(1))
	frames := float64(ticks) * transport.FramesPerTick(bpm, sampleRate)
	n := int(math.Ceil(frames / float64(framesPerBuffer)))
	return func(advance func()) {
		for i := 0; i < n; i++ {
			advance()
		}
	}
}
