package transport

import (
	"reflect"
	"testing"

	"github.com/kineticfactory/plink"
)

func TestTickDoesNotWaitForControlCalls(t *testing.T) {
	tr := New(nil, nil)
	tr.SetScore(plink.Score{Cues: []plink.Cue{
		{Time: 5, Action: plink.CodeStatement("five")},
		{Time: 6, Action: plink.CodeStatement("six")},
	}})
	type fired struct {
		action plink.Action
		at     plink.Tick
	}
	var got []fired
	var master plink.Tick
	tr.SetCuePlayer(CuePlayerFunc(func(c plink.Cue) { got = append(got, fired{c.Action, master}) }))
	var ticks []plink.Tick
	tr.AddTickListener(TickListenerFunc(func(pos plink.Tick) { ticks = append(ticks, pos) }))
	tr.RewindAndStart()
	for master = 0; master < 8; master++ {
		if master == 5 {
			tr.mu.Lock() // a control call in progress
		}
		tr.Tick(master)
		if master == 5 {
			tr.mu.Unlock()
		}
	}
	expected := []fired{{plink.CodeStatement("five"), 5}, {plink.CodeStatement("six"), 6}}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %v, expected %v", got, expected)
	}
	if expectedTicks := []plink.Tick{0, 1, 2, 3, 4, 5, 6, 7}; !reflect.DeepEqual(ticks, expectedTicks) {
		t.Fatalf("tick listener: got %v, expected %v", ticks, expectedTicks)
	}
}

func TestStartingTransitionUnderHeldLock(t *testing.T) {
	tr := New(nil, nil)
	tr.RewindAndStart()
	tr.mu.Lock()
	tr.Tick(100)
	tr.mu.Unlock()
	if s := tr.State(); s != (Running{Offset: -100}) {
		t.Fatalf("got %v, expected running(-100)", s)
	}
	tr.Stop()
	if s := tr.State(); s != (Stopped{Pos: 0}) {
		t.Fatalf("got %v, expected stopped(0)", s)
	}
}
