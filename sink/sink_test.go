package sink_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/sink"
)

func ramp(frames int) plink.BufferList {
	b := plink.NewBufferList(2, frames)
	for i := 0; i < frames; i++ {
		b[0][i] = float32(i) / float32(frames)
		b[1][i] = -float32(i) / float32(frames)
	}
	return b
}

func TestWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := sink.NewWAVFile(path, 44100, 16, 2)
	if err != nil {
		t.Fatalf("NewWAVFile failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Feed(ramp(100)); err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("could not decode the written file: %v", err)
	}
	if buf.Format.NumChannels != 2 || buf.Format.SampleRate != 44100 {
		t.Fatalf("format: got %v, expected 2 channels at 44100", buf.Format)
	}
	if len(buf.Data) != 600 {
		t.Fatalf("samples: got %v, expected 600", len(buf.Data))
	}
	if buf.Data[2] != 328 || buf.Data[3] != -328 {
		t.Fatalf("frame 1: got (%v, %v), expected (328, -328)", buf.Data[2], buf.Data[3])
	}
}

func TestWAVFileBitDepth(t *testing.T) {
	if _, err := sink.NewWAVFile(filepath.Join(t.TempDir(), "x.wav"), 44100, 8, 2); err == nil {
		t.Fatalf("expected an error for 8 bits")
	}
}

func TestRawFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.raw")
	r, err := sink.NewRawFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	r.Feed(ramp(10))
	r.Feed(ramp(10))
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2*10*2*2 {
		t.Fatalf("file size: got %v, expected %v", len(data), 2*10*2*2)
	}
}

type failingSink struct{ closed bool }

var errFeed = errors.New("feed failed")

func (f *failingSink) Feed(plink.BufferList) error { return errFeed }
func (f *failingSink) Close() error                { f.closed = true; return nil }

func TestTee(t *testing.T) {
	var m sink.Memory
	f := &failingSink{}
	tee := sink.Tee{&m, f}
	if err := tee.Feed(ramp(8)); !errors.Is(err, errFeed) {
		t.Fatalf("got %v, expected %v", err, errFeed)
	}
	if m.Frames() != 8 {
		t.Fatalf("memory frames: got %v, expected 8", m.Frames())
	}
	if err := tee.Close(); err != nil || !f.closed || !m.Closed() {
		t.Fatalf("Close should close every sink")
	}
}

func TestTap(t *testing.T) {
	var m sink.Memory
	tap := sink.NewTap(&m, 2, 64, 4, nil)
	b := ramp(64)
	for i := 0; i < 3; i++ {
		tap.PostRender(b)
	}
	if err := tap.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := int64(m.Len()) + tap.Dropped(); got != 3 {
		t.Fatalf("fed + dropped: got %v, expected 3", got)
	}
	if m.Len() > 0 && m.Interleaved()[3] != -1.0/64 {
		t.Fatalf("sample: got %v, expected %v", m.Interleaved()[3], -1.0/64)
	}
	if !m.Closed() {
		t.Fatalf("Close should close the sink")
	}
}
