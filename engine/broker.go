package engine

import (
	"sync"
	"time"

	"github.com/kineticfactory/plink"
)

type (
	// Broker connects the goroutines of the engine. Each recipient has one
	// channel. The audio thread only ever sends with TrySend, so it never
	// blocks; if a channel is full, the message is dropped.
	//
	// For closing goroutines, the broker has two channels for each goroutine:
	// CloseXXX and FinishedXXX. The CloseXXX channel has a capacity of 1, so
	// you can always send an empty message to it without blocking. Nothing is
	// ever sent to FinishedXXX; it is closed when the goroutine has cleaned
	// up. Wait for it with a timeout to avoid deadlocks:
	//    TimeoutReceive(b.FinishedExecutor, 3*time.Second)
	Broker struct {
		ToControl  chan func()
		ToExecutor chan plink.Cue
		ToMeter    chan *[]float32

		CloseExecutor chan struct{}
		CloseMeter    chan struct{}

		FinishedExecutor chan struct{}
		FinishedMeter    chan struct{}

		bufferPool sync.Pool
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToControl:        make(chan func(), 64),
		ToExecutor:       make(chan plink.Cue, 1024),
		ToMeter:          make(chan *[]float32, 64),
		CloseExecutor:    make(chan struct{}, 1),
		CloseMeter:       make(chan struct{}, 1),
		FinishedExecutor: make(chan struct{}),
		FinishedMeter:    make(chan struct{}),
		bufferPool:       sync.Pool{New: func() any { return &[]float32{} }},
	}
}

// GetBuffer returns an empty interleaved sample buffer from the pool. After
// using the buffer, return it with PutBuffer.
func (b *Broker) GetBuffer() *[]float32 {
	return b.bufferPool.Get().(*[]float32)
}

// PutBuffer returns a buffer to the pool, resetting its length but keeping
// its capacity.
func (b *Broker) PutBuffer(buf *[]float32) {
	*buf = (*buf)[:0]
	b.bufferPool.Put(buf)
}

// TrySend sends v to c if c is not full. It never blocks. It returns true if
// the value was sent.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received from c, or t has passed.
// ok is false on timeout or if c is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
