package engine

import (
	"math"

	"github.com/kineticfactory/plink"
)

// Volume is an average and peak volume measurement of stereo audio, in
// decibels. 0 dB = signal level of +-1.
type Volume struct {
	Average [2]float32
	Peak    [2]float32
}

// vuAnalyzer converts interleaved stereo into peak and average volumes.
//
// It first converts the signal to decibels. The average level is smoothed
// with an exponentially decaying average with time constant tau. The peak
// level is smoothed similarly, but with different time constants for attack
// and release. minVolume bounds the volumes to avoid negative infinities.
type vuAnalyzer struct {
	v            Volume
	minVolume    float32
	alpha        float32
	alphaAttack  float32
	alphaRelease float32
}

func newVuAnalyzer(tau, attack, release float64, minVolume float32, sampleRate int) *vuAnalyzer {
	sr := float64(sampleRate)
	return &vuAnalyzer{
		v:            Volume{Average: [2]float32{minVolume, minVolume}, Peak: [2]float32{minVolume, minVolume}},
		minVolume:    minVolume,
		alpha:        1 - float32(math.Exp(-1.0/(tau*sr))),
		alphaAttack:  1 - float32(math.Exp(-1.0/(attack*sr))),
		alphaRelease: 1 - float32(math.Exp(-1.0/(release*sr))),
	}
}

func (a *vuAnalyzer) update(interleaved []float32) Volume {
	for j := 0; j < 2; j++ {
		for i := j; i < len(interleaved); i += 2 {
			sample2 := float64(interleaved[i] * interleaved[i])
			dB := float32(10 * math.Log10(sample2))
			if math.IsNaN(float64(dB)) || dB < a.minVolume {
				dB = a.minVolume
			}
			a.v.Average[j] += (dB - a.v.Average[j]) * a.alpha
			alphaPeak := a.alphaAttack
			if dB < a.v.Peak[j] {
				alphaPeak = a.alphaRelease
			}
			a.v.Peak[j] += (dB - a.v.Peak[j]) * alphaPeak
		}
	}
	return a.v
}

// meterTap copies the rendered output into pooled buffers and sends them to
// the meter goroutine. It runs on the audio thread.
type meterTap struct {
	broker *Broker
}

func (t meterTap) PostRender(buffers plink.BufferList) {
	buf := t.broker.GetBuffer()
	*buf = buffers.Interleave(*buf)
	if !TrySend(t.broker.ToMeter, buf) {
		t.broker.PutBuffer(buf)
	}
}
