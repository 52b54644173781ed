package transport_test

import (
	"testing"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/transport"
)

func TestPlayCursorDrains(t *testing.T) {
	score := plink.Score{Cues: []plink.Cue{
		{Time: 24, Action: plink.CodeStatement("b")},
		{Time: 0, Action: plink.CodeStatement("a")},
		{Time: 24, Action: plink.CodeStatement("c")},
	}}
	c := transport.NewPlayCursor(score, 0)
	if _, ok := c.NextDueCue(-1); ok {
		t.Fatalf("nothing should be due before 0")
	}
	var got string
	for cue, ok := c.NextDueCue(30); ok; cue, ok = c.NextDueCue(30) {
		got += string(cue.Action.(plink.CodeStatement))
	}
	if got != "abc" {
		t.Fatalf("got %q, expected %q", got, "abc")
	}
	if c.Remaining() != 0 {
		t.Fatalf("remaining: got %v, expected 0", c.Remaining())
	}
	if _, ok := c.NextDueCue(1000); ok {
		t.Fatalf("a drained cursor should return nothing")
	}
}

func TestPlayCursorIsSnapshot(t *testing.T) {
	score := plink.Score{Cues: []plink.Cue{{Time: 0, Action: plink.CodeStatement("a")}}}
	c := transport.NewPlayCursor(score, 0)
	score.Cues[0].Action = plink.CodeStatement("changed")
	cue, ok := c.NextDueCue(0)
	if !ok || cue.Action != plink.CodeStatement("a") {
		t.Fatalf("cursor should not see changes to the score, got %v", cue)
	}
}
