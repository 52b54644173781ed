// Package sink implements audio sinks: files, memory, fan-out and a tap
// that moves rendered audio off the audio thread.
package sink

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/kineticfactory/plink"
)

// WAVFile writes the fed audio as integer PCM into a .wav file. The header
// is finalized on Close.
type WAVFile struct {
	f        *os.File
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	bitDepth int
	scale    float64
}

// NewWAVFile creates the file at path. bitDepth is 16 or 24.
func NewWAVFile(path string, sampleRate, bitDepth, numChannels int) (*WAVFile, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create wav file: %w", err)
	}
	return &WAVFile{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, bitDepth, numChannels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		bitDepth: bitDepth,
		scale:    math.Pow(2, float64(bitDepth-1)) - 1,
	}, nil
}

func (w *WAVFile) Feed(buffers plink.BufferList) error {
	n := buffers.Frames()
	channels := w.buf.Format.NumChannels
	w.buf.Data = w.buf.Data[:0]
	for f := 0; f < n; f++ {
		for c := 0; c < channels; c++ {
			v := float64(buffers[c%len(buffers)][f])
			w.buf.Data = append(w.buf.Data, int(math.Round(max(-1, min(1, v))*w.scale)))
		}
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("could not write wav data: %w", err)
	}
	return nil
}

func (w *WAVFile) Close() error {
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("could not close wav file: %w", err)
	}
	return nil
}
