package transport_test

import (
	"reflect"
	"testing"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/transport"
)

type manualClock struct{ t plink.Tick }

func (c *manualClock) TickTime() plink.Tick { return c.t }

func code(s string) plink.Action { return plink.CodeStatement(s) }

func TestStartInPlaceIsContinuous(t *testing.T) {
	clock := &manualClock{}
	tr := transport.New(clock, nil)
	clock.t = 60
	tr.Tick(60) // stopped: nothing happens
	tr.Stop()
	if s := tr.State(); s != (transport.Stopped{Pos: 0}) {
		t.Fatalf("stop while stopped: got %v, expected stopped(0)", s)
	}
	// put the transport to Stopped(10)
	tr.RewindAndStart()
	clock.t = 90
	tr.Tick(90)
	clock.t = 100
	tr.Stop()
	if s := tr.State(); s != (transport.Stopped{Pos: 10}) {
		t.Fatalf("got %v, expected stopped(10)", s)
	}
	tr.StartInPlace()
	if s := tr.State(); s != (transport.Starting{Pos: 10}) {
		t.Fatalf("after StartInPlace: got %v, expected starting(10)", s)
	}
	tr.Tick(100)
	if s := tr.State(); s != (transport.Running{Offset: -90}) {
		t.Fatalf("after first tick: got %v, expected running(-90)", s)
	}
	if pos := tr.ProgramPosition(); pos != 10 {
		t.Fatalf("position right after the transition: got %v, expected 10", int64(pos))
	}
	clock.t = 130
	if pos := tr.ProgramPosition(); pos != 40 {
		t.Fatalf("position between ticks: got %v, expected 40", int64(pos))
	}
	tr.Stop()
	if s := tr.State(); s != (transport.Stopped{Pos: 40}) {
		t.Fatalf("stop at master 130: got %v, expected stopped(40)", s)
	}
}

func TestStartInPlaceOnlyWhenStopped(t *testing.T) {
	tr := transport.New(nil, nil)
	tr.RewindAndStart()
	tr.Tick(5)
	tr.StartInPlace()
	if s := tr.State(); s != (transport.Running{Offset: -5}) {
		t.Fatalf("StartInPlace while running should do nothing, got %v", s)
	}
	tr.RewindAndStart()
	if s := tr.State(); s != (transport.Starting{Pos: 0}) {
		t.Fatalf("RewindAndStart while running: got %v, expected starting(0)", s)
	}
}

func TestCuesFireOnceInOrder(t *testing.T) {
	tr := transport.New(nil, nil)
	tr.SetScore(plink.Score{Cues: []plink.Cue{
		{Time: 48, Action: code("c")},
		{Time: 0, Action: code("a")},
		{Time: 24, Action: code("b")},
	}})
	type fired struct {
		cue plink.Cue
		at  plink.Tick
	}
	var got []fired
	var pos plink.Tick
	tr.SetCuePlayer(transport.CuePlayerFunc(func(c plink.Cue) { got = append(got, fired{c, pos}) }))
	tr.RewindAndStart()
	for master := plink.Tick(1000); master <= 1048; master++ {
		pos = master - 1000
		tr.Tick(master)
	}
	expected := []fired{
		{plink.Cue{Time: 0, Action: code("a")}, 0},
		{plink.Cue{Time: 24, Action: code("b")}, 24},
		{plink.Cue{Time: 48, Action: code("c")}, 48},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %v, expected %v", got, expected)
	}
}

func TestCatchUpAndTies(t *testing.T) {
	tr := transport.New(nil, nil)
	tr.SetScore(plink.Score{Cues: []plink.Cue{
		{Time: 5, Action: code("x")},
		{Time: 3, Action: code("first")},
		{Time: 3, Action: code("second")},
		{Time: 20, Action: code("late")},
	}})
	var got []string
	tr.SetCuePlayer(transport.CuePlayerFunc(func(c plink.Cue) { got = append(got, string(c.Action.(plink.CodeStatement))) }))
	tr.RewindAndStart()
	tr.Tick(0)
	tr.Tick(10) // jumps over 3 and 5
	expected := []string{"first", "second", "x"}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %v, expected %v", got, expected)
	}
}

func TestStoppedTransportIsInert(t *testing.T) {
	tr := transport.New(nil, nil)
	tr.AddCue(plink.Cue{Time: 2, Action: code("a")})
	count := 0
	ticks := 0
	tr.SetCuePlayer(transport.CuePlayerFunc(func(plink.Cue) { count++ }))
	tr.AddTickListener(transport.TickListenerFunc(func(plink.Tick) { ticks++ }))
	for i := plink.Tick(0); i < 10; i++ {
		tr.Tick(i)
	}
	if count != 0 || ticks != 0 {
		t.Fatalf("stopped transport played %v cues and %v ticks", count, ticks)
	}
	tr.StartInPlace()
	tr.Tick(10) // running from 0 with offset -10
	tr.Stop()
	tr.Tick(20)
	if count != 0 {
		t.Fatalf("cue at 2 should not have played, played %v", count)
	}
	tr.StartInPlace()
	tr.Tick(20)
	tr.Tick(22)
	if count != 1 {
		t.Fatalf("cue at 2 should play after restarting in place, played %v", count)
	}
}

func TestStartSkipsCuesBeforePosition(t *testing.T) {
	tr := transport.New(nil, nil)
	tr.SetScore(plink.Score{Cues: []plink.Cue{
		{Time: 0, Action: code("before")},
		{Time: 10, Action: code("at")},
	}})
	var got []string
	tr.SetCuePlayer(transport.CuePlayerFunc(func(c plink.Cue) { got = append(got, string(c.Action.(plink.CodeStatement))) }))
	tr.RewindAndStart()
	tr.Tick(0) // plays "before"
	tr.Tick(5)
	tr.Stop()
	if len(got) != 1 || got[0] != "before" {
		t.Fatalf("before stopping: got %v, expected [before]", got)
	}
	got = nil
	tr.StartInPlace() // from 5
	tr.Tick(50)
	if len(got) != 0 {
		t.Fatalf("nothing is due at 5, got %v", got)
	}
	tr.Tick(55)
	if len(got) != 1 || got[0] != "at" {
		t.Fatalf("starting in place at 5 should play only the cue at 10, got %v", got)
	}
}

func TestTickListenersInRegistrationOrder(t *testing.T) {
	tr := transport.New(nil, nil)
	var got []string
	var cueFirst bool
	tr.AddCue(plink.Cue{Time: 0, Action: code("a")})
	tr.SetCuePlayer(transport.CuePlayerFunc(func(plink.Cue) { cueFirst = len(got) == 0 }))
	tr.AddTickListener(transport.TickListenerFunc(func(p plink.Tick) { got = append(got, "one") }))
	var reg transport.Registration
	reg = tr.AddTickListener(transport.TickListenerFunc(func(p plink.Tick) {
		got = append(got, "two")
		reg.Remove() // deregistering from within the listener
	}))
	tr.AddTickListener(transport.TickListenerFunc(func(p plink.Tick) { got = append(got, "three") }))
	tr.RewindAndStart()
	tr.Tick(0)
	tr.Tick(1)
	expected := []string{"one", "two", "three", "one", "three"}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %v, expected %v", got, expected)
	}
	if !cueFirst {
		t.Fatalf("cues should be played before the tick listeners are called")
	}
}

func TestObservers(t *testing.T) {
	tr := transport.New(nil, nil)
	cueListChanges := 0
	reg := tr.AddCueListObserver(transport.CueListObserverFunc(func() { cueListChanges++ }))
	tr.AddCue(plink.Cue{Time: 1, Action: code("a")})
	tr.ClearCues()
	reg.Remove()
	tr.SetScore(plink.Score{})
	if cueListChanges != 2 {
		t.Fatalf("cue list changes: got %v, expected 2", cueListChanges)
	}
	var states []transport.TransmissionState
	tr.AddStateObserver(transport.StateObserverFunc(func(prev, next transport.TransmissionState) {
		states = append(states, next)
	}))
	tr.RewindAndStart()
	tr.Stop()
	expected := []transport.TransmissionState{transport.Starting{Pos: 0}, transport.Stopped{Pos: 0}}
	if !reflect.DeepEqual(states, expected) {
		t.Fatalf("got %v, expected %v", states, expected)
	}
}

func TestCuePlayerRegistration(t *testing.T) {
	tr := transport.New(nil, nil)
	tr.AddCue(plink.Cue{Time: 0, Action: code("a")})
	count := 0
	reg := tr.SetCuePlayer(transport.CuePlayerFunc(func(plink.Cue) { count++ }))
	reg.Remove()
	tr.RewindAndStart()
	tr.Tick(0)
	if count != 0 {
		t.Fatalf("removed cue player was called")
	}
}
