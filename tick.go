package plink

import (
	"fmt"
	"math"
)

type (
	// Tick is a position in musical time, counted in ticks from the start of
	// the program. There are TicksPerBeat ticks in one beat.
	Tick int64

	// Duration is a length of musical time in ticks. A Duration can be
	// negative; e.g. the offset between the master clock and the program
	// position is a Duration.
	Duration int64
)

// TicksPerBeat is the number of ticks in one beat. This is the same
// resolution as MIDI clock (24 pulses per quarter note).
const TicksPerBeat = 24

const (
	MinTick Tick = math.MinInt64
	MaxTick Tick = math.MaxInt64
)

// Add returns t+d. The result saturates at MinTick and MaxTick instead of
// wrapping around.
func (t Tick) Add(d Duration) Tick {
	return Tick(saturatingAdd(int64(t), int64(d)))
}

// Sub returns t-d, saturating like Add.
func (t Tick) Sub(d Duration) Tick {
	if d == math.MinInt64 {
		// -d is not representable
		return Tick(saturatingAdd(saturatingAdd(int64(t), math.MaxInt64), 1))
	}
	return Tick(saturatingAdd(int64(t), -int64(d)))
}

// Mul returns t*n, saturating like Add.
func (t Tick) Mul(n int) Tick {
	a, b := int64(t), int64(n)
	if a == 0 || b == 0 {
		return 0
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		if (a < 0) != (b < 0) {
			return MinTick
		}
		return MaxTick
	}
	return Tick(r)
}

// Since returns the duration d for which u.Add(d) == t, saturating like Add.
func (t Tick) Since(u Tick) Duration {
	if u == MinTick {
		return Duration(saturatingAdd(saturatingAdd(int64(t), math.MaxInt64), 1))
	}
	return Duration(saturatingAdd(int64(t), -int64(u)))
}

// Beat returns the beat the tick falls in, i.e. t / TicksPerBeat.
func (t Tick) Beat() int64 {
	return int64(t) / TicksPerBeat
}

// TickInBeat returns the tick within the beat, i.e. t % TicksPerBeat.
func (t Tick) TickInBeat() int64 {
	return int64(t) % TicksPerBeat
}

// Compare returns -1 if t < u, 0 if t == u and +1 if t > u.
func (t Tick) Compare(u Tick) int {
	switch {
	case t < u:
		return -1
	case t > u:
		return 1
	}
	return 0
}

func (t Tick) String() string {
	return fmt.Sprintf("%d∙%d", t.Beat(), t.TickInBeat())
}

// Beats returns a Duration of n whole beats.
func Beats(n int) Duration {
	return Duration(Tick(n).Mul(TicksPerBeat))
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}
