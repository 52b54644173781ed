package transport

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/internal/observer"
)

type (
	// Transport converts the master clock into the program position and plays
	// the Score: the play position, the play state and such. Tick is called
	// from the audio thread, everything else from a single control context.
	Transport struct {
		clock  Clock
		logger logrus.FieldLogger

		mu    sync.Mutex // serializes control calls; guards clock and score
		score plink.Score

		// play is replaced as a whole by the control calls. Tick only reads
		// it, except for the Starting to Running transition.
		play       atomic.Pointer[playback]
		lastMaster atomic.Int64
		cuePlayer  atomic.Pointer[CuePlayer]

		tickListeners    observer.List[TickListener]
		cueListObservers observer.List[CueListObserver]
		stateObservers   observer.List[StateObserver]
	}

	// playback is what the audio thread needs to play the score. The
	// cursor is advanced only by Tick.
	playback struct {
		state  TransmissionState
		cursor *PlayCursor
	}

	// Registration is returned when a listener or observer is added; Remove
	// it to stop the notifications.
	Registration = observer.Registration

	// Clock supplies the current master tick time.
	Clock interface {
		TickTime() plink.Tick
	}

	// CuePlayer executes cues as they become due. PlayCue is called on the
	// audio thread, so it must hand any slow work over to another goroutine.
	CuePlayer interface {
		PlayCue(cue plink.Cue)
	}

	// TickListener is notified of the program position on every tick while
	// the transport is running. OnTick is called on the audio thread.
	TickListener interface {
		OnTick(pos plink.Tick)
	}

	// CueListObserver is notified when the cue list of the score changes. The
	// notification has no payload; re-read the score.
	CueListObserver interface {
		CueListChanged()
	}

	// StateObserver is notified when the transport is started or stopped from
	// the control context.
	StateObserver interface {
		TransmissionStateChanged(prev, next TransmissionState)
	}

	CuePlayerFunc       func(cue plink.Cue)
	TickListenerFunc    func(pos plink.Tick)
	CueListObserverFunc func()
	StateObserverFunc   func(prev, next TransmissionState)
)

func (f CuePlayerFunc) PlayCue(cue plink.Cue)                               { f(cue) }
func (f TickListenerFunc) OnTick(pos plink.Tick)                            { f(pos) }
func (f CueListObserverFunc) CueListChanged()                               { f() }
func (f StateObserverFunc) TransmissionStateChanged(p, n TransmissionState) { f(p, n) }

// New creates a stopped Transport at position 0 with an empty score. clock
// may be nil, in which case the master time of the latest Tick is used as the
// current master time.
func New(clock Clock, logger logrus.FieldLogger) *Transport {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &Transport{
		clock:  clock,
		logger: logger,
	}
	t.play.Store(&playback{state: Stopped{Pos: 0}})
	return t
}

// SetClock replaces the master clock; nil falls back to the master time of
// the latest Tick.
func (t *Transport) SetClock(clock Clock) {
	t.mu.Lock()
	t.clock = clock
	t.mu.Unlock()
}

// State returns the current transmission state.
func (t *Transport) State() TransmissionState {
	return t.play.Load().state
}

// ProgramPosition returns the current program position. While running, it is
// computed from the master clock, so it is valid also between ticks.
func (t *Transport) ProgramPosition() plink.Tick {
	t.mu.Lock()
	defer t.mu.Unlock()
	return position(t.play.Load().state, t.masterTime())
}

// StartInPlace starts playing from the current position if the transport is
// stopped; otherwise it does nothing. The new pass starts from the first cue
// at or after the stop position, so a cue at exactly that position is played
// again if it was already played before stopping.
func (t *Transport) StartInPlace() {
	t.mu.Lock()
	s, ok := t.play.Load().state.(Stopped)
	if !ok {
		t.mu.Unlock()
		return
	}
	prev, next := t.startLocked(s.Pos)
	t.mu.Unlock()
	t.notifyState(prev, next)
}

// RewindAndStart starts playing from position 0, whatever the current state.
// Any cues left in the previous pass are discarded.
func (t *Transport) RewindAndStart() {
	t.mu.Lock()
	prev, next := t.startLocked(0)
	t.mu.Unlock()
	t.notifyState(prev, next)
}

// Stop freezes the program position where it is. The play cursor is kept but
// is not advanced until the transport is started again.
func (t *Transport) Stop() {
	t.mu.Lock()
	master := t.masterTime()
	var prev, next TransmissionState
	for {
		p := t.play.Load()
		n := &playback{state: Stopped{Pos: position(p.state, master)}, cursor: p.cursor}
		// Tick may have swapped in Running meanwhile
		if t.play.CompareAndSwap(p, n) {
			prev, next = p.state, n.state
			break
		}
	}
	t.mu.Unlock()
	t.notifyState(prev, next)
}

func (t *Transport) startLocked(at plink.Tick) (prev, next TransmissionState) {
	n := &playback{state: Starting{Pos: at}, cursor: NewPlayCursor(t.score, at)}
	return t.play.Swap(n).state, n.state
}

// Tick handles a tick of the master clock. It is called once per audio
// rendering quantum from the audio thread. It never blocks and never waits
// for the control calls, which publish their changes atomically.
//
// On the first tick after starting, the transport begins running so that the
// program position continues from the starting position without a jump. When
// running, all cues due at the program position are played in order, and then
// the tick listeners are called in registration order.
func (t *Transport) Tick(master plink.Tick) {
	t.lastMaster.Store(int64(master))
	p := t.play.Load()
	for {
		s, ok := p.state.(Starting)
		if !ok {
			break
		}
		n := &playback{state: Running{Offset: s.Pos.Since(master)}, cursor: p.cursor}
		if t.play.CompareAndSwap(p, n) {
			p = n
			break
		}
		p = t.play.Load()
	}
	r, running := p.state.(Running)
	if !running {
		return
	}
	pos := master.Add(r.Offset)
	if cursor := p.cursor; cursor != nil {
		player := t.cuePlayer.Load()
		for cue, ok := cursor.NextDueCue(pos); ok; cue, ok = cursor.NextDueCue(pos) {
			if player != nil {
				(*player).PlayCue(cue)
			}
		}
	}
	for _, e := range t.tickListeners.Snapshot() {
		e.Listener.OnTick(pos)
	}
}

// Score returns a copy of the score.
func (t *Transport) Score() plink.Score {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.score.Copy()
}

// SetScore replaces the score. A pass already playing keeps playing the old
// cues until the transport is started again.
func (t *Transport) SetScore(score plink.Score) {
	t.mu.Lock()
	t.score = score.Copy()
	t.mu.Unlock()
	t.notifyCueList()
}

// AddCue appends a cue to the score.
func (t *Transport) AddCue(cue plink.Cue) {
	t.mu.Lock()
	t.score.Append(cue)
	t.mu.Unlock()
	t.notifyCueList()
}

// ClearCues removes all cues from the score.
func (t *Transport) ClearCues() {
	t.mu.Lock()
	t.score = plink.Score{}
	t.mu.Unlock()
	t.notifyCueList()
}

// SetCuePlayer sets the player that executes the due cues; nil removes it.
func (t *Transport) SetCuePlayer(p CuePlayer) Registration {
	if p == nil {
		t.cuePlayer.Store(nil)
		return Registration{}
	}
	ptr := &p
	t.cuePlayer.Store(ptr)
	return observer.NewRegistration(func() { t.cuePlayer.CompareAndSwap(ptr, nil) })
}

func (t *Transport) AddTickListener(l TickListener) Registration {
	return t.tickListeners.Add(l)
}

func (t *Transport) AddCueListObserver(o CueListObserver) Registration {
	return t.cueListObservers.Add(o)
}

func (t *Transport) AddStateObserver(o StateObserver) Registration {
	return t.stateObservers.Add(o)
}

func (t *Transport) masterTime() plink.Tick {
	if t.clock != nil {
		return t.clock.TickTime()
	}
	return plink.Tick(t.lastMaster.Load())
}

func (t *Transport) notifyState(prev, next TransmissionState) {
	t.logger.WithFields(logrus.Fields{"from": prev, "to": next}).Debug("transmission state changed")
	for _, e := range t.stateObservers.Snapshot() {
		e.Listener.TransmissionStateChanged(prev, next)
	}
}

func (t *Transport) notifyCueList() {
	for _, e := range t.cueListObservers.Snapshot() {
		e.Listener.CueListChanged()
	}
}
