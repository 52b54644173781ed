package render

import (
	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
)

type (
	// RenderContext holds the state of one offline render.
	RenderContext struct {
		sys      *graph.System
		sink     plink.AudioSink
		logger   logrus.FieldLogger
		buf      plink.BufferList
		time     graph.TimeStamp
		silence  SilenceCounter
		isRunout bool

		frames  int64
		buffers int
		failed  int
	}

	// SilenceCounter counts the consecutive buffers whose peak level is
	// below Threshold.
	SilenceCounter struct {
		Count     int
		Threshold float32
	}
)

func NewRenderContext(sys *graph.System, sink plink.AudioSink, threshold float32, logger logrus.FieldLogger) *RenderContext {
	return &RenderContext{
		sys:     sys,
		sink:    sink,
		logger:  logger,
		buf:     plink.NewBufferList(2, sys.FramesPerBuffer()),
		silence: SilenceCounter{Threshold: threshold},
	}
}

// RenderFrame renders one buffer from the output at the current time stamp,
// feeds it to the sink and the silence counter, and advances the time stamp.
// A buffer that fails to render is logged and skipped; the time stamp is not
// advanced.
func (c *RenderContext) RenderFrame() {
	n := c.sys.FramesPerBuffer()
	if err := c.sys.RenderOutput(c.time, n, c.buf); err != nil {
		c.failed++
		c.logger.WithError(err).WithFields(logrus.Fields{
			"sampleTime": c.time.SampleTime,
			"runout":     c.IsRunout(),
		}).Error("could not render frame")
		return
	}
	if err := c.sink.Feed(c.buf); err != nil {
		c.logger.WithError(err).WithField("sampleTime", c.time.SampleTime).Error("could not feed frame to sink")
	}
	c.silence.Feed(c.buf)
	c.time.SampleTime += int64(n)
	c.frames += int64(n)
	c.buffers++
}

// Time returns the time stamp of the next buffer.
func (c *RenderContext) Time() graph.TimeStamp { return c.time }

// IsRunout reports whether the driver has returned and the run-out is being
// rendered.
func (c *RenderContext) IsRunout() bool { return c.isRunout }

func (c *RenderContext) Silence() SilenceCounter { return c.silence }

// Feed counts b as silent if its peak level is below the threshold, and
// resets the count otherwise.
func (s *SilenceCounter) Feed(b plink.BufferList) {
	if b.Peak() < s.Threshold {
		s.Count++
	} else {
		s.Count = 0
	}
}
