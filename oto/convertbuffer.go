package oto

import (
	"encoding/binary"
	"math"

	"github.com/kineticfactory/plink"
)

// putFloat32LE writes frames of the buffers interleaved as float32
// little-endian samples into dst, which must be large enough.
func putFloat32LE(dst []byte, buffers plink.BufferList, frames int) int {
	i := 0
	for f := 0; f < frames; f++ {
		for c := 0; c < numChannels; c++ {
			binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(buffers[c%len(buffers)][f]))
			i += 4
		}
	}
	return i
}

// put16BitLE is like putFloat32LE but converts the samples to signed 16-bit
// integers, clamping anything outside [-1, 1].
func put16BitLE(dst []byte, buffers plink.BufferList, frames int) int {
	i := 0
	for f := 0; f < frames; f++ {
		for c := 0; c < numChannels; c++ {
			binary.LittleEndian.PutUint16(dst[i:], uint16(plink.ToPCM16(buffers[c%len(buffers)][f])))
			i += 2
		}
	}
	return i
}
