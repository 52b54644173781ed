package sink

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
)

// Tap feeds a sink with the audio rendered on the audio thread. PostRender
// copies the buffers into a preallocated slot and queues it without
// blocking; a worker goroutine feeds the queued slots to the sink. If the
// worker falls behind, buffers are dropped and counted.
type Tap struct {
	sink    plink.AudioSink
	logger  logrus.FieldLogger
	free    chan plink.BufferList
	queued  chan plink.BufferList
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
	err     error
}

// NewTap starts the worker. queueLength slots of numChannels channels and
// maxFrames frames are allocated up front.
func NewTap(s plink.AudioSink, numChannels, maxFrames, queueLength int, logger logrus.FieldLogger) *Tap {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &Tap{
		sink:   s,
		logger: logger,
		free:   make(chan plink.BufferList, queueLength),
		queued: make(chan plink.BufferList, queueLength),
	}
	for i := 0; i < queueLength; i++ {
		t.free <- plink.NewBufferList(numChannels, maxFrames)
	}
	t.wg.Add(1)
	go t.work()
	return t
}

// PostRender is called on the audio thread.
func (t *Tap) PostRender(buffers plink.BufferList) {
	if len(buffers) == 0 {
		return
	}
	var slot plink.BufferList
	select {
	case slot = <-t.free:
	default:
		t.dropped.Add(1)
		return
	}
	for c := range slot {
		n := min(len(buffers[c%len(buffers)]), cap(slot[c]))
		slot[c] = slot[c][:n]
		copy(slot[c], buffers[c%len(buffers)])
	}
	select {
	case t.queued <- slot:
	default:
		t.free <- slot
		t.dropped.Add(1)
	}
}

func (t *Tap) work() {
	defer t.wg.Done()
	for slot := range t.queued {
		if t.err == nil {
			if err := t.sink.Feed(slot); err != nil {
				t.err = err
				t.logger.WithError(err).Error("tap sink failed, dropping the rest")
			}
		}
		t.free <- slot
	}
}

// Dropped returns the number of buffers that could not be queued.
func (t *Tap) Dropped() int64 {
	return t.dropped.Load()
}

// Close drains the queue and closes the sink. The tap must have been
// detached from the audio thread before calling Close. It returns the first
// error of the sink.
func (t *Tap) Close() error {
	t.once.Do(func() {
		close(t.queued)
		t.wg.Wait()
		if err := t.sink.Close(); t.err == nil {
			t.err = err
		}
	})
	return t.err
}
