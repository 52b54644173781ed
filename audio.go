package plink

import (
	"github.com/viterin/vek/vek32"
)

type (
	// BufferList is a block of non-interleaved audio: one slice of samples
	// per channel, all of the same length. The length of the slices is the
	// frame count of the block.
	BufferList [][]float32

	// AudioSink consumes rendered audio, e.g. writing it to a file or
	// monitoring it. Feed must not retain the buffers after returning.
	AudioSink interface {
		Feed(buffers BufferList) error
		Close() error
	}
)

// NewBufferList allocates a zeroed BufferList of numChannels channels and
// numFrames frames. The channels share one backing array.
func NewBufferList(numChannels, numFrames int) BufferList {
	backing := make([]float32, numChannels*numFrames)
	ret := make(BufferList, numChannels)
	for i := range ret {
		ret[i] = backing[i*numFrames : (i+1)*numFrames : (i+1)*numFrames]
	}
	return ret
}

// Frames returns the number of frames in the buffer list.
func (b BufferList) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Zero sets all the samples to zero.
func (b BufferList) Zero() {
	for _, c := range b {
		clear(c)
	}
}

// Slice returns a view of frames [from, to) of every channel.
func (b BufferList) Slice(from, to int) BufferList {
	ret := make(BufferList, len(b))
	for i, c := range b {
		ret[i] = c[from:to]
	}
	return ret
}

// CopyFrom copies min(b.Frames(), src.Frames()) frames of each channel from
// src. Channels missing from src are zeroed.
func (b BufferList) CopyFrom(src BufferList) {
	for i, c := range b {
		if i < len(src) {
			copy(c, src[i])
		} else {
			clear(c)
		}
	}
}

// Clone returns a deep copy of the buffer list.
func (b BufferList) Clone() BufferList {
	ret := NewBufferList(len(b), b.Frames())
	ret.CopyFrom(b)
	return ret
}

// Peak returns the largest absolute sample value over all channels.
func (b BufferList) Peak() float32 {
	var peak float32
	for _, c := range b {
		if len(c) == 0 {
			continue
		}
		if m := vek32.Max(c); m > peak {
			peak = m
		}
		if m := -vek32.Min(c); m > peak {
			peak = m
		}
	}
	return peak
}

// Interleave appends the buffer list as interleaved samples (L, R, L, R, ...)
// to dst and returns the extended slice.
func (b BufferList) Interleave(dst []float32) []float32 {
	n := b.Frames()
	for f := 0; f < n; f++ {
		for _, c := range b {
			dst = append(dst, c[f])
		}
	}
	return dst
}
