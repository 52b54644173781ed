package sink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/kineticfactory/plink"
)

// RawFile writes the fed audio as headerless interleaved little-endian
// samples, float32 or signed 16-bit.
type RawFile struct {
	f           *os.File
	w           *bufio.Writer
	pcm16       bool
	interleaved []float32
}

func NewRawFile(path string, pcm16 bool) (*RawFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create raw file: %w", err)
	}
	return &RawFile{f: f, w: bufio.NewWriter(f), pcm16: pcm16}, nil
}

func (r *RawFile) Feed(buffers plink.BufferList) error {
	r.interleaved = buffers.Interleave(r.interleaved[:0])
	return plink.WriteRaw(r.w, r.interleaved, r.pcm16)
}

func (r *RawFile) Close() error {
	err := r.w.Flush()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("could not close raw file: %w", err)
	}
	return nil
}
