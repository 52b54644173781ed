package graph

import (
	"fmt"
	"slices"

	"github.com/kineticfactory/plink/internal/observer"
)

type (
	// Channel is one strip of the mixer: a head node (an instrument, or a
	// pass-through until one is set) followed by a chain of insert effects,
	// feeding one mixer input. A Channel refers to its System only by the
	// System's RenderKey.
	Channel struct {
		name        string
		index       int
		owner       RenderKey
		head        Description
		instrument  bool
		inserts     []Description
		headNode    NodeID
		insertNodes []NodeID
		gain, pan   float32

		headObservers observer.List[HeadObserver]
	}

	// HeadObserver is notified after the node at the head of a channel, or
	// any node in its insert chain, has been replaced. It runs inside the
	// graph modification, with the graph stopped.
	HeadObserver interface {
		HeadNodeChanged(ch *Channel) error
	}

	// ChannelSnapshot is the saved state of a channel.
	ChannelSnapshot struct {
		Name       string        `json:"name" yaml:"name"`
		Instrument *Description  `json:"instrument,omitempty" yaml:"instrument,omitempty"`
		Inserts    []Description `json:"inserts,omitempty" yaml:"inserts,omitempty"`
		Gain       float32       `json:"gain" yaml:"gain"`
		Pan        float32       `json:"pan" yaml:"pan"`
	}
)

// NewChannel returns a channel with no instrument and no inserts, not yet
// part of any System.
func NewChannel(name string) *Channel {
	return &Channel{name: name, head: PassThrough, gain: 1, index: -1}
}

func newChannelFromSnapshot(s ChannelSnapshot) *Channel {
	ch := NewChannel(s.Name)
	if s.Instrument != nil {
		ch.head = *s.Instrument
		ch.instrument = true
	}
	ch.inserts = slices.Clone(s.Inserts)
	ch.insertNodes = make([]NodeID, len(ch.inserts))
	ch.gain, ch.pan = s.Gain, s.Pan
	return ch
}

func (c *Channel) Name() string { return c.name }

// Index returns the mixer input of the channel, or -1 if the channel has not
// been added to a System.
func (c *Channel) Index() int { return c.index }

// Instrument returns the description of the instrument, if one is set.
func (c *Channel) Instrument() (Description, bool) {
	return c.head, c.instrument
}

// HeadNode returns the first node of the channel.
func (c *Channel) HeadNode() NodeID { return c.headNode }

// Inserts returns the descriptions of the insert effects, in signal order.
func (c *Channel) Inserts() []Description {
	return slices.Clone(c.inserts)
}

// InsertNode returns the node of the i-th insert effect.
func (c *Channel) InsertNode(i int) NodeID { return c.insertNodes[i] }

// AddHeadObserver registers o to be notified when the channel's nodes are
// replaced.
func (c *Channel) AddHeadObserver(o HeadObserver) observer.Registration {
	return c.headObservers.Add(o)
}

func (c *Channel) system() (*System, error) {
	if c.owner == 0 {
		return nil, nil
	}
	s := registry.lookup(c.owner)
	if s == nil {
		return nil, fmt.Errorf("channel %q: owning system has been closed", c.name)
	}
	return s, nil
}

// SetInstrument replaces the head node of the channel with a new node
// instantiated from desc. If the channel is part of a System, the change is
// done inside a graph modification and the channel is connected back to the
// mixer.
func (c *Channel) SetInstrument(desc Description) error {
	return c.modify(func(p Provider) error {
		var node NodeID
		if p != nil {
			var err error
			if node, err = p.AddNode(desc); err != nil {
				return fmt.Errorf("could not instantiate instrument %v: %w", desc, err)
			}
			if err := removeNode(p, c.headNode); err != nil {
				return err
			}
		}
		c.head, c.instrument, c.headNode = desc, true, node
		if p != nil && len(c.insertNodes) > 0 {
			if err := p.Connect(c.headNode, 0, c.insertNodes[0], 0); err != nil {
				return fmt.Errorf("could not connect instrument to insert: %w", err)
			}
		}
		return nil
	})
}

// AddInsert appends an effect to the end of the insert chain.
func (c *Channel) AddInsert(desc Description) error {
	return c.modify(func(p Provider) error {
		var node NodeID
		if p != nil {
			var err error
			if node, err = p.AddNode(desc); err != nil {
				return fmt.Errorf("could not instantiate insert %v: %w", desc, err)
			}
			tail := c.tailNode()
			if err := p.DisconnectOutput(tail, 0); err != nil {
				return err
			}
			if err := p.Connect(tail, 0, node, 0); err != nil {
				return fmt.Errorf("could not connect insert: %w", err)
			}
		}
		c.inserts = append(c.inserts, desc)
		c.insertNodes = append(c.insertNodes, node)
		return nil
	})
}

// RemoveInsert removes the i-th insert effect.
func (c *Channel) RemoveInsert(i int) error {
	if i < 0 || i >= len(c.inserts) {
		return fmt.Errorf("channel %q has no insert %d", c.name, i)
	}
	return c.modify(func(p Provider) error {
		if p != nil {
			if err := removeNode(p, c.insertNodes[i]); err != nil {
				return err
			}
		}
		c.inserts = slices.Delete(c.inserts, i, i+1)
		c.insertNodes = slices.Delete(c.insertNodes, i, i+1)
		if p == nil || i == len(c.insertNodes) {
			return nil
		}
		prev := c.headNode
		if i > 0 {
			prev = c.insertNodes[i-1]
		}
		if err := p.Connect(prev, 0, c.insertNodes[i], 0); err != nil {
			return fmt.Errorf("could not reconnect insert chain: %w", err)
		}
		return nil
	})
}

// Gain returns the volume of the channel's mixer input.
func (c *Channel) Gain() (float32, error) {
	s, err := c.system()
	if s == nil || err != nil {
		return c.gain, err
	}
	return s.Gain(c.index)
}

func (c *Channel) SetGain(v float32) error {
	s, err := c.system()
	if s == nil || err != nil {
		c.gain = v
		return err
	}
	return s.SetGain(c.index, v)
}

// Pan returns the pan of the channel's mixer input, from -1 (left) to 1
// (right).
func (c *Channel) Pan() (float32, error) {
	s, err := c.system()
	if s == nil || err != nil {
		return c.pan, err
	}
	return s.Pan(c.index)
}

func (c *Channel) SetPan(v float32) error {
	s, err := c.system()
	if s == nil || err != nil {
		c.pan = v
		return err
	}
	return s.SetPan(c.index, v)
}

// Snapshot returns the saved state of the channel.
func (c *Channel) Snapshot() (ChannelSnapshot, error) {
	ret := ChannelSnapshot{Name: c.name, Inserts: c.Inserts()}
	if c.instrument {
		d := c.head
		ret.Instrument = &d
	}
	var err error
	if ret.Gain, err = c.Gain(); err != nil {
		return ChannelSnapshot{}, err
	}
	if ret.Pan, err = c.Pan(); err != nil {
		return ChannelSnapshot{}, err
	}
	return ret, nil
}

// modify runs f inside a graph modification of the owning System, then
// notifies the head observers. Detached channels only record the change.
func (c *Channel) modify(f func(p Provider) error) error {
	s, err := c.system()
	if err != nil {
		return err
	}
	if s == nil {
		return f(nil)
	}
	return s.ModifyingGraph(false, func() error {
		if err := f(s.provider); err != nil {
			return err
		}
		for _, e := range c.headObservers.Snapshot() {
			if err := e.Listener.HeadNodeChanged(c); err != nil {
				return err
			}
		}
		return nil
	})
}

// instantiate creates the nodes of the channel and connects the chain. On
// failure, the nodes created so far are left in place for teardown.
func (c *Channel) instantiate(p Provider) error {
	c.insertNodes = c.insertNodes[:0]
	var err error
	if c.headNode, err = p.AddNode(c.head); err != nil {
		return fmt.Errorf("could not instantiate head node %v: %w", c.head, err)
	}
	prev := c.headNode
	for _, d := range c.inserts {
		node, err := p.AddNode(d)
		if err != nil {
			return fmt.Errorf("could not instantiate insert %v: %w", d, err)
		}
		c.insertNodes = append(c.insertNodes, node)
		if err := p.Connect(prev, 0, node, 0); err != nil {
			return fmt.Errorf("could not connect insert %v: %w", d, err)
		}
		prev = node
	}
	return nil
}

// teardown disconnects and removes the inserts and the head node.
func (c *Channel) teardown(p Provider) error {
	for _, n := range c.insertNodes {
		if err := removeNode(p, n); err != nil {
			return err
		}
	}
	c.insertNodes = make([]NodeID, len(c.inserts))
	if err := removeNode(p, c.headNode); err != nil {
		return err
	}
	c.headNode = 0
	return nil
}

// tailNode is the node whose output feeds the mixer.
func (c *Channel) tailNode() NodeID {
	if len(c.insertNodes) > 0 {
		return c.insertNodes[len(c.insertNodes)-1]
	}
	return c.headNode
}

func removeNode(p Provider, n NodeID) error {
	if n == 0 {
		return nil
	}
	if err := p.DisconnectAll(n); err != nil {
		return fmt.Errorf("could not disconnect node %d: %w", n, err)
	}
	if err := p.RemoveNode(n); err != nil {
		return fmt.Errorf("could not remove node %d: %w", n, err)
	}
	return nil
}
