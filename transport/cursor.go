package transport

import (
	"github.com/kineticfactory/plink"
)

// PlayCursor walks through a snapshot of a Score during one playback pass.
// The snapshot is sorted by time, so the Score itself can be in any order.
// Cues with equal times are played in the order they appear in the Score.
type PlayCursor struct {
	cues []plink.Cue
	next int
}

// NewPlayCursor creates a cursor positioned at the first cue whose time is at
// or after the given position; cues before it are never played.
func NewPlayCursor(score plink.Score, at plink.Tick) *PlayCursor {
	cues := score.Sorted().Cues
	next := 0
	for next < len(cues) && cues[next].Time < at {
		next++
	}
	return &PlayCursor{cues: cues, next: next}
}

// NextDueCue returns the next unplayed cue whose time is at or before pos and
// advances past it. Call it in a loop until ok is false to play all the cues
// that have become due.
func (c *PlayCursor) NextDueCue(pos plink.Tick) (cue plink.Cue, ok bool) {
	if c.next >= len(c.cues) || c.cues[c.next].Time > pos {
		return plink.Cue{}, false
	}
	cue = c.cues[c.next]
	c.next++
	return cue, true
}

// Remaining returns the number of cues not yet played.
func (c *PlayCursor) Remaining() int {
	return len(c.cues) - c.next
}
