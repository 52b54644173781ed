// Package engine puts the transport and the graph together and runs them on
// the right goroutines: control calls are serialized on one goroutine, cues
// are executed on another, and offline renders on a worker of their own.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/render"
	"github.com/kineticfactory/plink/transport"
)

type (
	Engine struct {
		broker    *Broker
		sys       *graph.System
		transport *transport.Transport
		metronome *transport.Metronome
		cuePlayer *AsyncCuePlayer
		executor  Executor
		logger    logrus.FieldLogger

		graphMu   sync.Mutex // held by control calls and renders
		volume    atomic.Pointer[Volume]
		execFails atomic.Int64
	}

	// ExternalClock is a master clock driven from outside the graph, e.g. by
	// MIDI timing clocks. It ticks the transport on every rendering quantum.
	ExternalClock interface {
		transport.Clock
		graph.PreRenderListener
	}

	Options struct {
		Logger logrus.FieldLogger
		// Meter enables metering of the output through a post-render tap.
		Meter bool
		// Tap, if set, also receives the rendered output, e.g. for recording.
		Tap graph.Tap
	}
)

// closeTimeout bounds the wait for the worker goroutines to finish.
const closeTimeout = 3 * time.Second

var ErrNotRunning = errors.New("engine is not running")

// New wires a Metronome and a Transport to sys: the metronome counts the
// rendered frames, ticks the transport, and the transport plays its cues
// through exec on the executor goroutine.
func New(sys *graph.System, exec Executor, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := &Engine{
		broker:   NewBroker(),
		sys:      sys,
		executor: exec,
		logger:   logger,
	}
	e.metronome = transport.NewMetronome(nil)
	e.transport = transport.New(e.metronome, logger)
	e.metronome.SetTicker(e.transport)
	e.cuePlayer = NewAsyncCuePlayer(e.broker)
	e.transport.SetCuePlayer(e.cuePlayer)
	sys.AddPreRenderListener(e.metronome)
	sys.AddInterruptionListener(graph.InterruptionFunc(func() {
		logger.Debug("audio interrupted")
	}))
	var taps []graph.Tap
	if opts.Meter {
		taps = append(taps, meterTap{broker: e.broker})
	}
	if opts.Tap != nil {
		taps = append(taps, opts.Tap)
	}
	switch len(taps) {
	case 1:
		sys.SetPostRenderTap(taps[0])
	case 2:
		sys.SetPostRenderTap(graph.TapFunc(func(b plink.BufferList) {
			for _, t := range taps {
				t.PostRender(b)
			}
		}))
	}
	return e
}

func (e *Engine) Broker() *Broker                 { return e.broker }
func (e *Engine) System() *graph.System           { return e.sys }
func (e *Engine) Transport() *transport.Transport { return e.transport }
func (e *Engine) Metronome() *transport.Metronome { return e.metronome }
func (e *Engine) CuePlayer() *AsyncCuePlayer      { return e.cuePlayer }

// UseClock replaces the metronome with c as the master clock of the
// transport. The metronome keeps counting frames but no longer ticks the
// transport. Call it before Run.
func (e *Engine) UseClock(c ExternalClock) {
	e.metronome.SetTicker(nil)
	e.transport.SetClock(c)
	e.sys.AddPreRenderListener(c)
}

// SetExecutor replaces the executor of the cues. Call it before Run and
// outside renders.
func (e *Engine) SetExecutor(exec Executor) { e.executor = exec }

// ExecutionFailures returns the number of cues whose execution failed.
func (e *Engine) ExecutionFailures() int64 { return e.execFails.Load() }

// Volume returns the latest output level measurement.
func (e *Engine) Volume() Volume {
	if v := e.volume.Load(); v != nil {
		return *v
	}
	return Volume{Average: [2]float32{minVolume, minVolume}, Peak: [2]float32{minVolume, minVolume}}
}

const minVolume = -60

// Run runs the control loop, the executor and the meter until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	go e.runExecutor()
	go e.runMeter()
	defer func() {
		TrySend(e.broker.CloseExecutor, struct{}{})
		TrySend(e.broker.CloseMeter, struct{}{})
		TimeoutReceive(e.broker.FinishedExecutor, closeTimeout)
		TimeoutReceive(e.broker.FinishedMeter, closeTimeout)
	}()
	for {
		select {
		case f := <-e.broker.ToControl:
			e.graphMu.Lock()
			f()
			e.graphMu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Do runs fn on the control goroutine and waits for its result. All calls
// that modify the transport or the graph should go through Do.
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case e.broker.ToControl <- func() { result <- fn() }:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotRunning, ctx.Err())
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render renders offline on a worker goroutine and blocks until done.
// Control calls wait until the render has finished, and the render waits
// for a control call in progress. Render must therefore not be called from
// a function passed to Do, or the two wait for each other forever. The
// render cannot be cancelled: the driver decides when to stop.
func (e *Engine) Render(newSink render.SinkFactory, mode render.RunoutMode, driver render.Driver, opts ...render.Option) (render.Result, error) {
	type result struct {
		res render.Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		e.graphMu.Lock()
		defer e.graphMu.Unlock()
		res, err := render.Render(e.sys, newSink, mode, driver, append([]render.Option{render.WithLogger(e.logger)}, opts...)...)
		done <- result{res, err}
	}()
	r := <-done
	return r.res, r.err
}

// RenderScore renders score from its beginning to one beat after its last
// cue at the current tempo. The cues are executed synchronously on the
// render thread, so that they take effect at exactly the right buffer; the
// executor must therefore not block.
func (e *Engine) RenderScore(score plink.Score, newSink render.SinkFactory, mode render.RunoutMode, opts ...render.Option) (render.Result, error) {
	if p, ok := e.executor.(preparer); ok {
		if err := p.Prepare(score); err != nil {
			return render.Result{}, err
		}
	}
	driver := render.ScoreDriver(score, e.metronome.BPM(), e.sys.SampleRate(), e.sys.FramesPerBuffer())
	return e.Render(newSink, mode, func(advance func()) {
		e.transport.SetCuePlayer(transport.CuePlayerFunc(e.execute))
		defer e.transport.SetCuePlayer(e.cuePlayer)
		e.transport.SetScore(score)
		e.transport.RewindAndStart()
		driver(advance)
		e.transport.Stop()
	}, opts...)
}

type preparer interface {
	Prepare(score plink.Score) error
}

// PlayScore replaces the score and starts playing it from the beginning.
func (e *Engine) PlayScore(ctx context.Context, score plink.Score) error {
	return e.Do(ctx, func() error {
		if p, ok := e.executor.(preparer); ok {
			if err := p.Prepare(score); err != nil {
				return err
			}
		}
		e.transport.SetScore(score)
		e.transport.RewindAndStart()
		return nil
	})
}

func (e *Engine) runExecutor() {
	defer close(e.broker.FinishedExecutor)
	for {
		select {
		case cue := <-e.broker.ToExecutor:
			e.execute(cue)
		case <-e.broker.CloseExecutor:
			return
		}
	}
}

func (e *Engine) execute(cue plink.Cue) {
	if e.executor == nil {
		return
	}
	switch a := cue.Action.(type) {
	case plink.CodeStatement:
		if err := e.executor.Execute(a); err != nil {
			e.execFails.Add(1)
			e.logger.WithError(err).WithField("time", cue.Time).Warn("cue failed")
		}
	}
}

func (e *Engine) runMeter() {
	defer close(e.broker.FinishedMeter)
	vu := newVuAnalyzer(0.3, 1.5e-3, 1.5, minVolume, e.sys.SampleRate())
	for {
		select {
		case buf := <-e.broker.ToMeter:
			v := vu.update(*buf)
			e.volume.Store(&v)
			e.broker.PutBuffer(buf)
		case <-e.broker.CloseMeter:
			return
		}
	}
}
