package transport

import (
	"math"
	"sync/atomic"

	"github.com/kineticfactory/plink"
)

type (
	// Metronome is the master clock. It counts the audio frames rendered by the
	// graph and converts them into ticks at the current tempo. On each
	// rendering quantum it ticks its Ticker (typically a Transport) with the
	// master time at the start of the quantum.
	Metronome struct {
		ticker   atomic.Pointer[Ticker]
		bpm      atomic.Uint64 // float64 bits
		tickTime atomic.Int64
		frames   atomic.Int64
		frac     float64 // fractional ticks carried over between quanta; audio thread only
	}

	// Ticker receives the master clock ticks.
	Ticker interface {
		Tick(master plink.Tick)
	}
)

// DefaultBPM is the tempo of a new Metronome.
const DefaultBPM = 120

func NewMetronome(ticker Ticker) *Metronome {
	m := &Metronome{}
	m.SetTicker(ticker)
	m.SetBPM(DefaultBPM)
	return m
}

// SetTicker sets the receiver of the master clock ticks; nil removes it.
func (m *Metronome) SetTicker(ticker Ticker) {
	if ticker == nil {
		m.ticker.Store(nil)
		return
	}
	m.ticker.Store(&ticker)
}

// SetBPM sets the tempo in beats per minute. Non-positive values stop the
// clock from advancing.
func (m *Metronome) SetBPM(bpm float64) {
	m.bpm.Store(math.Float64bits(bpm))
}

func (m *Metronome) BPM() float64 {
	return math.Float64frombits(m.bpm.Load())
}

// TickTime returns the current master tick time.
func (m *Metronome) TickTime() plink.Tick {
	return plink.Tick(m.tickTime.Load())
}

// Frames returns the total number of frames counted so far.
func (m *Metronome) Frames() int64 {
	return m.frames.Load()
}

// PreRender is called on the audio thread before each quantum of frameCount
// frames is rendered at sampleRate frames per second.
func (m *Metronome) PreRender(frameCount, sampleRate int) {
	now := m.TickTime()
	if t := m.ticker.Load(); t != nil {
		(*t).Tick(now)
	}
	m.frames.Add(int64(frameCount))
	bpm := m.BPM()
	if bpm <= 0 || sampleRate <= 0 {
		return
	}
	m.frac += float64(frameCount) * bpm * plink.TicksPerBeat / (60 * float64(sampleRate))
	whole := math.Floor(m.frac)
	m.frac -= whole
	m.tickTime.Store(int64(now.Add(plink.Duration(whole))))
}

// FramesPerTick returns how many frames one tick lasts at the given tempo and
// sample rate.
func FramesPerTick(bpm float64, sampleRate int) float64 {
	return 60 * float64(sampleRate) / (bpm * plink.TicksPerBeat)
}
