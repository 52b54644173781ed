package sink

import (
	"sync"

	"github.com/kineticfactory/plink"
)

// Memory keeps copies of all the fed buffers. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	buffers []plink.BufferList
	closed  bool
}

func (m *Memory) Feed(buffers plink.BufferList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers = append(m.buffers, buffers.Clone())
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of buffers fed so far.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

// Frames returns the total number of frames fed so far.
func (m *Memory) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.buffers {
		total += b.Frames()
	}
	return total
}

// Interleaved returns everything fed so far as interleaved samples.
func (m *Memory) Interleaved() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []float32
	for _, b := range m.buffers {
		ret = b.Interleave(ret)
	}
	return ret
}

func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
