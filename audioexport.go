package plink

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WriteRaw writes the interleaved samples to w as little-endian bytes,
// either as float32 or, if pcm16 = true, converted to signed 16-bit integers.
func WriteRaw(w io.Writer, interleaved []float32, pcm16 bool) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(interleaved))
		for i, v := range interleaved {
			int16data[i] = ToPCM16(v)
		}
		err = binary.Write(w, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(w, binary.LittleEndian, interleaved)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data: %w", err)
	}
	return nil
}

// ToPCM16 converts a sample in the range [-1, 1] to a signed 16-bit value,
// clamping anything outside the range.
func ToPCM16(v float32) int16 {
	return int16(clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
