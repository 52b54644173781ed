package engine_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/engine"
	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/graph/memgraph"
	"github.com/kineticfactory/plink/midiclock"
	"github.com/kineticfactory/plink/render"
	"github.com/kineticfactory/plink/sink"
	"github.com/kineticfactory/plink/transport"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSystem(t *testing.T) *graph.System {
	t.Helper()
	p := memgraph.New(48000, 500)
	s, err := graph.New(p, graph.Options{SampleRate: 48000, FramesPerBuffer: 500, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	ch, err := s.CreateChannel()
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.SetInstrument(memgraph.Sine); err != nil {
		t.Fatal(err)
	}
	return s
}

func score(cues ...plink.Cue) plink.Score {
	return plink.Score{Cues: cues}
}

func cue(t plink.Tick, code string) plink.Cue {
	return plink.Cue{Time: t, Action: plink.CodeStatement(code)}
}

func TestTrySendAndTimeoutReceive(t *testing.T) {
	c := make(chan int, 1)
	if !engine.TrySend(c, 1) {
		t.Fatalf("TrySend to an empty channel should succeed")
	}
	if engine.TrySend(c, 2) {
		t.Fatalf("TrySend to a full channel should fail")
	}
	if v, ok := engine.TimeoutReceive(c, time.Second); !ok || v != 1 {
		t.Fatalf("got (%v, %v), expected (1, true)", v, ok)
	}
	if _, ok := engine.TimeoutReceive(c, time.Millisecond); ok {
		t.Fatalf("TimeoutReceive from an empty channel should time out")
	}
}

func TestBrokerBufferPool(t *testing.T) {
	b := engine.NewBroker()
	buf := b.GetBuffer()
	*buf = append(*buf, 1, 2, 3)
	b.PutBuffer(buf)
	if len(*buf) != 0 {
		t.Fatalf("a returned buffer should be emptied")
	}
}

func TestAsyncCuePlayerDrops(t *testing.T) {
	b := engine.NewBroker()
	p := engine.NewAsyncCuePlayer(b)
	for i := 0; i < cap(b.ToExecutor)+3; i++ {
		p.PlayCue(cue(plink.Tick(i), "x"))
	}
	if p.Dropped() != 3 {
		t.Fatalf("dropped: got %v, expected 3", p.Dropped())
	}
}

type bpmRecorder float64

func (b *bpmRecorder) SetBPM(v float64) { *b = bpmRecorder(v) }

func TestCommandExecutor(t *testing.T) {
	s := newSystem(t)
	var tempo bpmRecorder
	x := engine.NewCommandExecutor(s, &tempo)
	if err := x.Execute("ch1 freq 220; ch1 gain 0.5 ;tempo 90"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	ch, _ := s.ChannelNamed("ch1")
	if v, _ := s.NodeParameter(ch.HeadNode(), memgraph.ParamFrequency, graph.GlobalScope, 0); v != 220 {
		t.Fatalf("frequency: got %v, expected 220", v)
	}
	if v, _ := ch.Gain(); v != 0.5 {
		t.Fatalf("gain: got %v, expected 0.5", v)
	}
	if tempo != 90 {
		t.Fatalf("tempo: got %v, expected 90", tempo)
	}
	for _, code := range []plink.CodeStatement{"ch1 volume 1", "ch1 gate", "tempo fast", "ch1 pan left"} {
		if err := x.Execute(code); !errors.Is(err, engine.ErrSyntax) {
			t.Fatalf("%q: got %v, expected %v", code, err, engine.ErrSyntax)
		}
	}
	if err := x.Execute("ch9 gate 1"); !errors.Is(err, graph.ErrChannelNotFound) {
		t.Fatalf("got %v, expected %v", err, graph.ErrChannelNotFound)
	}
	if err := x.Prepare(score(cue(0, "ch1 gate 1"), cue(1, "oops"))); !errors.Is(err, engine.ErrSyntax) {
		t.Fatalf("Prepare: got %v, expected %v", err, engine.ErrSyntax)
	}
}

func TestRenderScore(t *testing.T) {
	s := newSystem(t)
	e := engine.New(s, nil, engine.Options{Logger: quietLogger()})
	e.SetExecutor(engine.NewCommandExecutor(s, e.Metronome()))
	// at 120 bpm and 48 kHz, a tick is 1000 frames, i.e. two buffers
	var m sink.Memory
	res, err := e.RenderScore(score(cue(0, "ch1 gate 1"), cue(24, "ch1 gate 0")), func() (plink.AudioSink, error) { return &m, nil },
		render.RunoutToSilence{BufferThreshold: 2, MaxExtraFrames: 50})
	if err != nil {
		t.Fatalf("RenderScore failed: %v", err)
	}
	// two beats; the tail is already silent when the driver returns
	if res.Buffers != 96 || res.RunoutBuffers != 0 {
		t.Fatalf("buffers: got (%v, %v), expected (96, 0)", res.Buffers, res.RunoutBuffers)
	}
	samples := m.Interleaved()
	if peak := (plink.BufferList{samples[:2*48*500]}).Peak(); peak < 0.2 {
		t.Fatalf("first beat: got peak %v, expected the sine", peak)
	}
	if peak := (plink.BufferList{samples[2*49*500 : 2*96*500]}).Peak(); peak != 0 {
		t.Fatalf("second beat: got peak %v, expected silence", peak)
	}
	if e.ExecutionFailures() != 0 {
		t.Fatalf("execution failures: got %v, expected 0", e.ExecutionFailures())
	}
	if _, ok := e.Transport().State().(transport.Stopped); !ok {
		t.Fatalf("transport state: got %v, expected stopped", e.Transport().State())
	}
}

func TestRunAndDo(t *testing.T) {
	s := newSystem(t)
	executed := make(chan plink.CodeStatement, 4)
	e := engine.New(s, engine.ExecutorFunc(func(c plink.CodeStatement) error {
		executed <- c
		return nil
	}), engine.Options{Logger: quietLogger(), Meter: true})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	if err := e.PlayScore(ctx, score(cue(0, "hello"))); err != nil {
		t.Fatalf("PlayScore failed: %v", err)
	}
	// render by hand, as the audio device would
	err := e.Do(ctx, func() error {
		if err := s.Stop(); err != nil {
			return err
		}
		buf := plink.NewBufferList(2, 500)
		return s.RenderOutput(graph.TimeStamp{}, 500, buf)
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if c, ok := engine.TimeoutReceive(executed, 3*time.Second); !ok || c != "hello" {
		t.Fatalf("executed: got (%q, %v), expected (\"hello\", true)", c, ok)
	}
	boom := errors.New("boom")
	if err := e.Do(ctx, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("got %v, expected %v", err, boom)
	}
	cancel()
	if err, _ := engine.TimeoutReceive(done, 3*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, expected %v", err, context.Canceled)
	}
	if err := e.Do(ctx, func() error { return nil }); err == nil {
		t.Fatalf("Do after Run returned should fail")
	}
}

func TestUseMIDIClock(t *testing.T) {
	s := newSystem(t)
	e := engine.New(s, nil, engine.Options{Logger: quietLogger()})
	src := midiclock.New(e.Transport(), e.Transport(), quietLogger())
	e.UseClock(src)
	e.Transport().SetScore(score(cue(0, "a"), cue(2, "b")))
	src.HandleMessage(midi.Message{0xFA}, 0)
	renderBuffer := func() {
		t.Helper()
		if err := s.RenderOutput(graph.TimeStamp{}, 500, plink.NewBufferList(2, 500)); err != nil {
			t.Fatalf("RenderOutput failed: %v", err)
		}
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	renderBuffer()
	if c, ok := engine.TimeoutReceive(e.Broker().ToExecutor, time.Second); !ok || c.Time != 0 {
		t.Fatalf("got (%v, %v), expected the cue at 0", c, ok)
	}
	// the metronome no longer drives the transport
	for i := 0; i < 10; i++ {
		renderBuffer()
	}
	if pos := e.Transport().ProgramPosition(); pos != 0 {
		t.Fatalf("position: got %v, expected 0", pos)
	}
	for i := 0; i < 2; i++ {
		src.HandleMessage(midi.Message{0xF8}, int32(i))
	}
	if pos := e.Transport().ProgramPosition(); pos != 2 {
		t.Fatalf("position: got %v, expected 2", pos)
	}
	renderBuffer()
	if c, ok := engine.TimeoutReceive(e.Broker().ToExecutor, time.Second); !ok || c.Time != 2 {
		t.Fatalf("got (%v, %v), expected the cue at 2", c, ok)
	}
}

func TestMeterAndTap(t *testing.T) {
	s := newSystem(t)
	var m sink.Memory
	e := engine.New(s, nil, engine.Options{
		Logger: quietLogger(),
		Meter:  true,
		Tap:    graph.TapFunc(func(b plink.BufferList) { m.Feed(b) }),
	})
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.RenderOutput(graph.TimeStamp{}, 500, plink.NewBufferList(2, 500)); err != nil {
		t.Fatalf("RenderOutput failed: %v", err)
	}
	if m.Frames() != 500 {
		t.Fatalf("tapped frames: got %v, expected 500", m.Frames())
	}
	buf, ok := engine.TimeoutReceive(e.Broker().ToMeter, time.Second)
	if !ok {
		t.Fatalf("no buffer was sent to the meter")
	}
	if len(*buf) != 1000 {
		t.Fatalf("meter buffer: got %v samples, expected 1000", len(*buf))
	}
}

func TestRealTimePathDoesNotAllocate(t *testing.T) {
	p := memgraph.New(48000, 500)
	s, err := graph.New(p, graph.Options{SampleRate: 48000, FramesPerBuffer: 500, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	ch, err := s.CreateChannel()
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.SetInstrument(memgraph.Sine); err != nil {
		t.Fatal(err)
	}
	e := engine.New(s, nil, engine.Options{Logger: quietLogger()})
	ticks := 0
	e.Transport().AddTickListener(transport.TickListenerFunc(func(plink.Tick) { ticks++ }))
	var cues []plink.Cue
	for i := 0; i < 200; i++ {
		cues = append(cues, cue(plink.Tick(i), "ch1 gate 1"))
	}
	e.Transport().SetScore(score(cues...))
	e.Transport().RewindAndStart()
	buf := plink.NewBufferList(2, 500)
	p.Pull(buf) // starts the transport
	allocs := testing.AllocsPerRun(100, func() { p.Pull(buf) })
	if allocs != 0 {
		t.Fatalf("allocations per pull: got %v, expected 0", allocs)
	}
	if ticks != 102 {
		t.Fatalf("tick listener calls: got %v, expected 102", ticks)
	}
	if e.Metronome().TickTime() < 50 {
		t.Fatalf("master clock: got %v, expected at least 50 ticks", e.Metronome().TickTime())
	}
	if n := len(e.Broker().ToExecutor); n < 50 {
		t.Fatalf("queued cues: got %v, expected at least 50", n)
	}
}

func TestRenderWaitsForControlCall(t *testing.T) {
	s := newSystem(t)
	e := engine.New(s, nil, engine.Options{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	release := make(chan struct{})
	started := make(chan struct{})
	doDone := make(chan error, 1)
	go func() {
		doDone <- e.Do(ctx, func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	rendered := make(chan render.Result, 1)
	go func() {
		res, _ := e.Render(func() (plink.AudioSink, error) { return &sink.Memory{}, nil }, render.RunoutNone{},
			func(advance func()) { advance() })
		rendered <- res
	}()
	if _, ok := engine.TimeoutReceive(rendered, 50*time.Millisecond); ok {
		t.Fatalf("the render should wait for the control call")
	}
	close(release)
	if err, ok := engine.TimeoutReceive(doDone, 3*time.Second); !ok || err != nil {
		t.Fatalf("Do: got (%v, %v), expected (nil, true)", err, ok)
	}
	res, ok := engine.TimeoutReceive(rendered, 3*time.Second)
	if !ok || res.Buffers != 1 {
		t.Fatalf("render: got (%+v, %v), expected one buffer", res, ok)
	}
}
