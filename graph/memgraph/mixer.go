package memgraph

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
)

// MaxMixerInputs is the number of input buses of a mixer.
const MaxMixerInputs = 64

// Meter ballistics, in seconds, and the floor of the meters in decibels.
const (
	meterTau     = 0.3
	meterAttack  = 1.5e-3
	meterRelease = 1.5
	meterFloor   = -120
)

type (
	mixer struct {
		inVolume   [MaxMixerInputs]param
		inPan      [MaxMixerInputs]param
		inMeter    [MaxMixerInputs]meter
		outVolume  param
		outMeter   meter
		scratch    plink.BufferList
		view       plink.BufferList
		power      []float32
		sampleRate float64
	}

	// meter measures the average power and the peak level of a stereo
	// signal in decibels, smoothing them exponentially over time.
	meter struct {
		enabled atomic.Bool
		average [2]param
		peak    [2]param
	}
)

func newMixer() *mixer {
	m := &mixer{}
	m.outVolume.set(1)
	for i := range m.inVolume {
		m.inVolume[i].set(1)
	}
	for i := range m.inMeter {
		m.inMeter[i].reset()
	}
	m.outMeter.reset()
	return m
}

func (m *mixer) numInputs() int { return MaxMixerInputs }

func (m *mixer) init(sampleRate, maxFrames int) {
	m.sampleRate = float64(sampleRate)
	m.scratch = plink.NewBufferList(2, maxFrames)
	m.view = make(plink.BufferList, 2)
	m.power = make([]float32, maxFrames)
}

func (m *mixer) param(id graph.ParamID, scope graph.Scope, element int) (*param, bool) {
	var mt *meter
	switch scope {
	case graph.InputScope:
		if element < 0 || element >= MaxMixerInputs {
			return nil, false
		}
		switch id {
		case graph.ParamVolume:
			return &m.inVolume[element], true
		case graph.ParamPan:
			return &m.inPan[element], true
		}
		mt = &m.inMeter[element]
	case graph.OutputScope:
		if element != 0 {
			return nil, false
		}
		if id == graph.ParamVolume {
			return &m.outVolume, true
		}
		mt = &m.outMeter
	default:
		return nil, false
	}
	switch id {
	case graph.ParamPostAveragePower, graph.ParamPostAveragePowerRight:
		return &mt.average[id-graph.ParamPostAveragePower], false
	case graph.ParamPostPeakHoldLevel, graph.ParamPostPeakHoldLevelRight:
		return &mt.peak[id-graph.ParamPostPeakHoldLevel], false
	}
	return nil, false
}

func (m *mixer) setProperty(prop graph.PropertyID, scope graph.Scope, element int, value int) error {
	if prop != graph.PropertyMeteringMode {
		return fmt.Errorf("unknown property %d", prop)
	}
	var mt *meter
	switch {
	case scope == graph.InputScope && element >= 0 && element < MaxMixerInputs:
		mt = &m.inMeter[element]
	case scope == graph.OutputScope && element == 0:
		mt = &m.outMeter
	default:
		return fmt.Errorf("no metering at scope %d element %d", scope, element)
	}
	mt.enabled.Store(value != 0)
	return nil
}

// render sums the inputs into the stereo output. A mono input is sent to
// both sides; pan is applied as a balance, so that a centered input keeps
// its level.
func (m *mixer) render(ins []plink.BufferList, out plink.BufferList) {
	out.Zero()
	frames := out.Frames()
	for c := range m.view {
		m.view[c] = m.scratch[c][:frames]
	}
	for bus, in := range ins {
		if in == nil {
			continue
		}
		vol := m.inVolume[bus].get()
		pan := m.inPan[bus].get()
		gains := [2]float32{vol * min(1, 1-pan), vol * min(1, 1+pan)}
		for c := range m.view {
			vek32.MulNumber_Into(m.view[c], inputChannel(in, c), gains[c])
		}
		m.measure(&m.inMeter[bus], m.view)
		for c := range out {
			vek32.Add_Inplace(out[c], m.view[c%2])
		}
	}
	v := m.outVolume.get()
	for c := range out {
		vek32.MulNumber_Inplace(out[c], v)
	}
	m.measure(&m.outMeter, out)
}

func (m *mixer) measure(mt *meter, b plink.BufferList) {
	frames := b.Frames()
	if !mt.enabled.Load() || frames == 0 {
		return
	}
	alpha := smoothing(meterTau, frames, m.sampleRate)
	for c := 0; c < 2 && c < len(b); c++ {
		ms := vek32.Mean(vek32.Mul_Into(m.power[:frames], b[c], b[c]))
		db := toDecibels(ms)
		avg := mt.average[c].get()
		mt.average[c].set(avg + (db-avg)*alpha)
		abs := max(vek32.Max(b[c]), -vek32.Min(b[c]))
		peakDB := toDecibels(abs * abs)
		peak := mt.peak[c].get()
		a := smoothing(meterRelease, frames, m.sampleRate)
		if peakDB > peak {
			a = smoothing(meterAttack, frames, m.sampleRate)
		}
		mt.peak[c].set(peak + (peakDB-peak)*a)
	}
}

func (mt *meter) reset() {
	for c := 0; c < 2; c++ {
		mt.average[c].set(meterFloor)
		mt.peak[c].set(meterFloor)
	}
}

// smoothing returns the coefficient of an exponential moving average with
// time constant tau, updated once per block of frames.
func smoothing(tau float64, frames int, sampleRate float64) float32 {
	return 1 - float32(math.Exp(-float64(frames)/(tau*sampleRate)))
}

func toDecibels(power float32) float32 {
	if math.IsNaN(float64(power)) || power <= 0 {
		return meterFloor
	}
	return max(float32(10*math.Log10(float64(power))), meterFloor)
}
