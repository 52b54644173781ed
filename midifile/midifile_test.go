package midifile_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/midifile"
)

func TestWriteRead(t *testing.T) {
	score := plink.Score{Cues: []plink.Cue{
		{Time: 48, Action: plink.CodeStatement("c")},
		{Time: 0, Action: plink.CodeStatement("a")},
		{Time: 30, Action: plink.CodeStatement("b")},
	}}
	var buf bytes.Buffer
	if err := midifile.Write(&buf, score, 90); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, bpm, err := midifile.Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if bpm < 89.99 || bpm > 90.01 {
		t.Fatalf("tempo: got %v, expected 90", bpm)
	}
	if !reflect.DeepEqual(got, score.Sorted()) {
		t.Fatalf("got %v, expected %v", got.Cues, score.Sorted().Cues)
	}
}

func TestWriteNegativeTime(t *testing.T) {
	score := plink.Score{Cues: []plink.Cue{{Time: -1, Action: plink.CodeStatement("x")}}}
	if err := midifile.Write(&bytes.Buffer{}, score, 120); !errors.Is(err, midifile.ErrNegativeTime) {
		t.Fatalf("got %v, expected %v", err, midifile.ErrNegativeTime)
	}
}

func TestWriteTimeOutOfRange(t *testing.T) {
	score := plink.Score{Cues: []plink.Cue{
		{Time: 0, Action: plink.CodeStatement("a")},
		{Time: 1 << 32, Action: plink.CodeStatement("b")},
	}}
	if err := midifile.Write(&bytes.Buffer{}, score, 120); !errors.Is(err, midifile.ErrTimeOutOfRange) {
		t.Fatalf("got %v, expected %v", err, midifile.ErrTimeOutOfRange)
	}
	score.Cues[1].Time = 0x0FFFFFFF
	if err := midifile.Write(&bytes.Buffer{}, score, 120); err != nil {
		t.Fatalf("largest delta should fit, got %v", err)
	}
}

func TestReadZeroResolution(t *testing.T) {
	data := []byte{
		'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1, 0, 0, // format 0, one track, division 0
		'M', 'T', 'r', 'k', 0, 0, 0, 9,
		0, 0xFF, 0x01, 0x01, 'x', // text "x" at 0
		0, 0xFF, 0x2F, 0x00, // end of track
	}
	if _, _, err := midifile.Read(bytes.NewReader(data)); err == nil {
		t.Fatalf("reading a file with zero resolution should fail")
	}
}
