// Package memgraph is an in-process graph.Provider written in pure Go. All
// nodes are stereo. Rendering is pull based: rendering a node renders
// everything connected to its inputs first.
package memgraph

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
)

const numChannels = 2

// ErrRunning is returned when the topology is modified, or a node is
// rendered directly, while the graph is running.
var ErrRunning = errors.New("graph is running")

// Provider is a graph.Provider rendering in the calling goroutine. Topology
// changes are refused while the graph is running; parameters and properties
// can be changed at any time.
type Provider struct {
	sampleRate  int
	maxFrames   int
	nodes       map[graph.NodeID]*node
	nextID      graph.NodeID
	opened      bool
	initialized bool
	device      *node

	running    atomic.Bool
	inflight   atomic.Int32
	deviceTime int64 // audio thread only
	pullView   plink.BufferList
}

// New returns a Provider rendering at most maxFrames frames per call.
func New(sampleRate, maxFrames int) *Provider {
	return &Provider{
		sampleRate: sampleRate,
		maxFrames:  maxFrames,
		nodes:      map[graph.NodeID]*node{},
		pullView:   make(plink.BufferList, numChannels),
	}
}

func (p *Provider) Open() error {
	p.opened = true
	return nil
}

func (p *Provider) Initialize() error {
	if !p.opened {
		return errors.New("graph not opened")
	}
	if p.initialized {
		return nil
	}
	for _, n := range p.nodes {
		n.init(p.sampleRate, p.maxFrames)
	}
	p.initialized = true
	return nil
}

func (p *Provider) Uninitialize() error {
	if p.running.Load() {
		return ErrRunning
	}
	p.initialized = false
	return nil
}

// Start starts rendering to the device output. The device sample time
// starts again from 0.
func (p *Provider) Start() error {
	if !p.initialized {
		return graph.ErrNotInitialized
	}
	p.deviceTime = 0
	p.running.Store(true)
	return nil
}

// Stop stops rendering to the device output and waits until a device pull
// in progress has finished.
func (p *Provider) Stop() error {
	p.running.Store(false)
	for p.inflight.Load() > 0 {
		runtime.Gosched()
	}
	return nil
}

// Running reports whether the graph has been started.
func (p *Provider) Running() bool {
	return p.running.Load()
}

func (p *Provider) SampleRate() int { return p.sampleRate }
func (p *Provider) MaxFrames() int  { return p.maxFrames }

func (p *Provider) AddNode(desc graph.Description) (graph.NodeID, error) {
	if p.running.Load() {
		return 0, ErrRunning
	}
	if desc == graph.DefaultOutput && p.device != nil {
		return 0, errors.New("a device output already exists")
	}
	u, err := newUnit(desc)
	if err != nil {
		return 0, err
	}
	p.nextID++
	n := newNode(p.nextID, desc, u)
	if p.initialized {
		n.init(p.sampleRate, p.maxFrames)
	}
	p.nodes[n.id] = n
	if desc == graph.DefaultOutput {
		p.device = n
	}
	return n.id, nil
}

func (p *Provider) RemoveNode(id graph.NodeID) error {
	n, err := p.node(id)
	if err != nil {
		return err
	}
	if err := p.DisconnectAll(id); err != nil {
		return err
	}
	delete(p.nodes, id)
	if p.device == n {
		p.device = nil
	}
	return nil
}

func (p *Provider) Connect(srcID graph.NodeID, srcBus int, dstID graph.NodeID, dstBus int) error {
	if p.running.Load() {
		return ErrRunning
	}
	src, err := p.node(srcID)
	if err != nil {
		return err
	}
	dst, err := p.node(dstID)
	if err != nil {
		return err
	}
	switch {
	case src.isOutput():
		return fmt.Errorf("%v has no output: %w", src.desc, graph.ErrConnectionFailed)
	case srcBus != 0:
		return fmt.Errorf("%v has no output bus %d: %w", src.desc, srcBus, graph.ErrConnectionFailed)
	case dstBus < 0 || dstBus >= len(dst.inputs):
		return fmt.Errorf("%v has no input bus %d: %w", dst.desc, dstBus, graph.ErrConnectionFailed)
	case src == dst || src.upstream(dst):
		return fmt.Errorf("connecting %d to %d would make a cycle: %w", srcID, dstID, graph.ErrConnectionFailed)
	}
	p.disconnectOutput(src)
	if old := dst.inputs[dstBus].node; old != nil {
		old.output = endpoint{}
	}
	dst.inputs[dstBus] = endpoint{node: src, bus: srcBus}
	src.output = endpoint{node: dst, bus: dstBus}
	return nil
}

func (p *Provider) DisconnectOutput(id graph.NodeID, bus int) error {
	if p.running.Load() {
		return ErrRunning
	}
	n, err := p.node(id)
	if err != nil {
		return err
	}
	if bus != 0 {
		return fmt.Errorf("%v has no output bus %d", n.desc, bus)
	}
	p.disconnectOutput(n)
	return nil
}

func (p *Provider) disconnectOutput(n *node) {
	if dst := n.output.node; dst != nil {
		dst.inputs[n.output.bus] = endpoint{}
	}
	n.output = endpoint{}
}

func (p *Provider) DisconnectAll(id graph.NodeID) error {
	if p.running.Load() {
		return ErrRunning
	}
	n, err := p.node(id)
	if err != nil {
		return err
	}
	p.disconnectOutput(n)
	for bus, in := range n.inputs {
		if in.node != nil {
			in.node.output = endpoint{}
		}
		n.inputs[bus] = endpoint{}
	}
	return nil
}

func (p *Provider) SetParameter(id graph.NodeID, param graph.ParamID, scope graph.Scope, element int, value float32) error {
	n, err := p.node(id)
	if err != nil {
		return err
	}
	prm, writable := n.unit.param(param, scope, element)
	if prm == nil {
		return fmt.Errorf("%v has no parameter %d at scope %d element %d", n.desc, param, scope, element)
	}
	if !writable {
		return fmt.Errorf("parameter %d of %v is read-only", param, n.desc)
	}
	prm.set(value)
	return nil
}

func (p *Provider) Parameter(id graph.NodeID, param graph.ParamID, scope graph.Scope, element int) (float32, error) {
	n, err := p.node(id)
	if err != nil {
		return 0, err
	}
	prm, _ := n.unit.param(param, scope, element)
	if prm == nil {
		return 0, fmt.Errorf("%v has no parameter %d at scope %d element %d", n.desc, param, scope, element)
	}
	return prm.get(), nil
}

func (p *Provider) SetProperty(id graph.NodeID, prop graph.PropertyID, scope graph.Scope, element int, value int) error {
	n, err := p.node(id)
	if err != nil {
		return err
	}
	return n.unit.setProperty(prop, scope, element, value)
}

func (p *Provider) AddRenderNotify(id graph.NodeID, key graph.RenderKey, fn graph.RenderNotifyFunc) error {
	if p.running.Load() {
		return ErrRunning
	}
	n, err := p.node(id)
	if err != nil {
		return err
	}
	n.notifies = append(n.notifies, notification{key: key, fn: fn})
	return nil
}

// Render renders frames from a node into buffers, calling the render
// notifications of the node around it. The graph must be initialized and
// not running.
func (p *Provider) Render(id graph.NodeID, ts graph.TimeStamp, frames int, buffers plink.BufferList) error {
	if p.running.Load() {
		return ErrRunning
	}
	n, err := p.node(id)
	if err != nil {
		return err
	}
	if err := p.checkRender(frames, buffers); err != nil {
		return err
	}
	p.renderNode(n, ts, frames, buffers)
	return nil
}

func (p *Provider) checkRender(frames int, buffers plink.BufferList) error {
	if !p.initialized {
		return graph.ErrNotInitialized
	}
	if frames < 0 || frames > p.maxFrames {
		return fmt.Errorf("cannot render %d frames, the maximum is %d", frames, p.maxFrames)
	}
	if buffers.Frames() < frames {
		return fmt.Errorf("buffers hold %d frames, %d needed", buffers.Frames(), frames)
	}
	return nil
}

// renderNode runs on the audio thread and does not allocate.
func (p *Provider) renderNode(n *node, ts graph.TimeStamp, frames int, buffers plink.BufferList) {
	for _, nt := range n.notifies {
		nt.fn(nt.key, graph.PreRender, ts, frames, buffers)
	}
	out := n.render(frames)
	for c := range buffers {
		copy(buffers[c][:frames], inputChannel(out, c))
	}
	for _, nt := range n.notifies {
		nt.fn(nt.key, graph.PostRender, ts, frames, buffers)
	}
}

// Pull fills buffers from the device output, in quanta of at most MaxFrames
// frames. It is called by the audio device; if the graph is not running or
// has no device output, buffers are silenced.
func (p *Provider) Pull(buffers plink.BufferList) {
	p.inflight.Add(1)
	defer p.inflight.Add(-1)
	if !p.running.Load() || p.device == nil || p.maxFrames <= 0 || len(buffers) == 0 {
		buffers.Zero()
		return
	}
	total := buffers.Frames()
	for off := 0; off < total; off += p.maxFrames {
		frames := min(p.maxFrames, total-off)
		for c := range p.pullView {
			p.pullView[c] = buffers[c%len(buffers)][off : off+frames]
		}
		p.renderNode(p.device, graph.TimeStamp{SampleTime: p.deviceTime}, frames, p.pullView)
		p.deviceTime += int64(frames)
	}
}

func (p *Provider) node(id graph.NodeID) (*node, error) {
	n, ok := p.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, graph.ErrNodeNotFound)
	}
	return n, nil
}
