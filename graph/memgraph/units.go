package memgraph

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
)

// Parameters of the instrument and effect nodes, in addition to the mixer
// parameters defined by package graph.
const (
	ParamFrequency graph.ParamID = 100 + iota // sine, Hz
	ParamAmplitude                            // sine, linear
	ParamGate                                 // sine, > 0 is on
	ParamDelayTime                            // delay, seconds
	ParamFeedback                             // delay, 0..1
	ParamMix                                  // delay, wet level
)

// Descriptions of the nodes this provider can instantiate, in addition to
// the ones defined by package graph.
var (
	Sine  = graph.Description{Type: graph.InstrumentComponent, SubType: "sine"}
	Gain  = graph.Description{Type: graph.EffectComponent, SubType: "gain"}
	Delay = graph.Description{Type: graph.EffectComponent, SubType: "delay"}
)

const (
	maxDelaySeconds = 2
	envelopeSeconds = 0.005
)

type (
	// unit is the signal processing of a node. render is called on the audio
	// thread with one entry per input bus, nil if the bus is not connected,
	// and must fill out completely.
	unit interface {
		numInputs() int
		init(sampleRate, maxFrames int)
		param(id graph.ParamID, scope graph.Scope, element int) (p *param, writable bool)
		setProperty(prop graph.PropertyID, scope graph.Scope, element int, value int) error
		render(ins []plink.BufferList, out plink.BufferList)
	}

	// param is a float32 that can be set from the control context while the
	// audio thread reads it.
	param struct {
		bits atomic.Uint32
	}

	noProperties struct{}

	passThrough struct{ noProperties }

	gain struct {
		noProperties
		volume param
	}

	sine struct {
		noProperties
		freq, amp, gate param
		sampleRate      float64
		phase           float64
		env             float32
	}

	delay struct {
		noProperties
		time, feedback, mix param
		sampleRate          float64
		ring                [2][]float32
		pos                 int
	}
)

func (p *param) get() float32  { return math.Float32frombits(p.bits.Load()) }
func (p *param) set(v float32) { p.bits.Store(math.Float32bits(v)) }

func newUnit(desc graph.Description) (unit, error) {
	switch desc {
	case graph.DefaultOutput, graph.GenericOutput, graph.PassThrough:
		return &passThrough{}, nil
	case graph.MultiChannelMixer:
		return newMixer(), nil
	case Sine:
		s := &sine{}
		s.freq.set(440)
		s.amp.set(0.25)
		return s, nil
	case Gain:
		g := &gain{}
		g.volume.set(1)
		return g, nil
	case Delay:
		d := &delay{}
		d.time.set(0.25)
		d.feedback.set(0.4)
		d.mix.set(0.3)
		return d, nil
	}
	return nil, fmt.Errorf("no such component: %v", desc)
}

func (noProperties) setProperty(prop graph.PropertyID, _ graph.Scope, _ int, _ int) error {
	return fmt.Errorf("unknown property %d", prop)
}

func (*passThrough) numInputs() int                                       { return 1 }
func (*passThrough) init(_, _ int)                                        {}
func (*passThrough) param(graph.ParamID, graph.Scope, int) (*param, bool) { return nil, false }
func (*passThrough) render(ins []plink.BufferList, out plink.BufferList) {
	out.CopyFrom(ins[0])
}

func (*gain) numInputs() int { return 1 }
func (*gain) init(_, _ int)  {}
func (g *gain) param(id graph.ParamID, _ graph.Scope, _ int) (*param, bool) {
	if id == graph.ParamVolume {
		return &g.volume, true
	}
	return nil, false
}
func (g *gain) render(ins []plink.BufferList, out plink.BufferList) {
	if ins[0] == nil {
		out.Zero()
		return
	}
	v := g.volume.get()
	for c := range out {
		vek32.MulNumber_Into(out[c], inputChannel(ins[0], c), v)
	}
}

func (*sine) numInputs() int { return 0 }
func (s *sine) init(sampleRate, _ int) {
	s.sampleRate = float64(sampleRate)
}
func (s *sine) param(id graph.ParamID, _ graph.Scope, _ int) (*param, bool) {
	switch id {
	case ParamFrequency:
		return &s.freq, true
	case ParamAmplitude:
		return &s.amp, true
	case ParamGate:
		return &s.gate, true
	}
	return nil, false
}

// render plays a sine wave with a short linear envelope so that gating it
// does not click.
func (s *sine) render(_ []plink.BufferList, out plink.BufferList) {
	step := float32(1 / (envelopeSeconds * s.sampleRate))
	var target float32
	if s.gate.get() > 0 {
		target = 1
	}
	amp := s.amp.get()
	inc := float64(s.freq.get()) / s.sampleRate
	left := out[0]
	for i := range left {
		switch {
		case s.env < target:
			s.env = min(s.env+step, target)
		case s.env > target:
			s.env = max(s.env-step, target)
		}
		left[i] = amp * s.env * float32(math.Sin(2*math.Pi*s.phase))
		s.phase += inc
		if s.phase >= 1 {
			s.phase -= 1
		}
	}
	for c := 1; c < len(out); c++ {
		copy(out[c], left)
	}
}

func (*delay) numInputs() int { return 1 }
func (d *delay) init(sampleRate, _ int) {
	d.sampleRate = float64(sampleRate)
	for c := range d.ring {
		d.ring[c] = make([]float32, maxDelaySeconds*sampleRate)
	}
	d.pos = 0
}
func (d *delay) param(id graph.ParamID, _ graph.Scope, _ int) (*param, bool) {
	switch id {
	case ParamDelayTime:
		return &d.time, true
	case ParamFeedback:
		return &d.feedback, true
	case ParamMix:
		return &d.mix, true
	}
	return nil, false
}
func (d *delay) render(ins []plink.BufferList, out plink.BufferList) {
	n := len(d.ring[0])
	if n == 0 {
		out.Zero()
		return
	}
	length := int(float64(d.time.get()) * d.sampleRate)
	length = max(1, min(length, n-1))
	fb, mix := d.feedback.get(), d.mix.get()
	pos := d.pos
	for c := range out {
		ring := d.ring[c%2]
		var in []float32
		if ins[0] != nil {
			in = inputChannel(ins[0], c)
		}
		pos = d.pos
		for i := range out[c] {
			var x float32
			if in != nil {
				x = in[i]
			}
			r := pos - length
			if r < 0 {
				r += n
			}
			delayed := ring[r]
			out[c][i] = x + mix*delayed
			ring[pos] = x + fb*delayed
			pos++
			if pos == n {
				pos = 0
			}
		}
	}
	d.pos = pos
}

// inputChannel returns channel c of in, reusing the last channel of a mono
// input.
func inputChannel(in plink.BufferList, c int) []float32 {
	if c < len(in) {
		return in[c]
	}
	return in[len(in)-1]
}
