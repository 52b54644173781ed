package engine

import (
	"sync/atomic"

	"github.com/kineticfactory/plink"
)

// AsyncCuePlayer hands the due cues over to the executor goroutine without
// blocking the audio thread. If the executor queue is full, the cue is
// dropped and counted.
type AsyncCuePlayer struct {
	broker  *Broker
	dropped atomic.Int64
}

func NewAsyncCuePlayer(broker *Broker) *AsyncCuePlayer {
	return &AsyncCuePlayer{broker: broker}
}

func (p *AsyncCuePlayer) PlayCue(cue plink.Cue) {
	if !TrySend(p.broker.ToExecutor, cue) {
		p.dropped.Add(1)
	}
}

// Dropped returns the number of cues that were dropped.
func (p *AsyncCuePlayer) Dropped() int64 {
	return p.dropped.Load()
}
