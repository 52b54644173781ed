package plink_test

import (
	"testing"

	"github.com/kineticfactory/plink"
)

func TestBufferListPeak(t *testing.T) {
	b := plink.NewBufferList(2, 4)
	b[0][1] = 0.25
	b[1][3] = -0.5
	if p := b.Peak(); p != 0.5 {
		t.Fatalf("Peak: got %v, expected 0.5", p)
	}
	b.Zero()
	if p := b.Peak(); p != 0 {
		t.Fatalf("Peak after Zero: got %v, expected 0", p)
	}
}

func TestBufferListInterleave(t *testing.T) {
	b := plink.BufferList{{1, 2, 3}, {-1, -2, -3}}
	got := b.Interleave(nil)
	expected := []float32{1, -1, 2, -2, 3, -3}
	if len(got) != len(expected) {
		t.Fatalf("length: got %v, expected %v", len(got), len(expected))
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Fatalf("sample %v: got %v, expected %v", i, got[i], expected[i])
		}
	}
	if f := b.Slice(1, 3).Frames(); f != 2 {
		t.Fatalf("Slice frames: got %v, expected 2", f)
	}
}

func TestToPCM16Clamps(t *testing.T) {
	if v := plink.ToPCM16(2); v != 32767 {
		t.Fatalf("got %v, expected 32767", v)
	}
	if v := plink.ToPCM16(-2); v != -32768 {
		t.Fatalf("got %v, expected -32768", v)
	}
}
