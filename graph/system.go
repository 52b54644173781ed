// Package graph manages the lifecycle of an audio processing graph: a mixer
// feeding an output node, and a list of channels feeding the mixer. The
// nodes themselves are created and rendered by a Provider.
package graph

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/internal/observer"
)

type (
	// System owns the processing graph and the channel list. Its methods
	// must be called from a single control context; only the render
	// notification runs on the audio thread.
	System struct {
		provider        Provider
		key             RenderKey
		sampleRate      int
		framesPerBuffer int
		logger          logrus.FieldLogger
		fatalHandler    func(*FatalError)

		mixer      NodeID
		out        NodeID
		outputMode OutputMode
		channels   []*Channel
		headRegs   []observer.Registration

		preRender     observer.List[PreRenderListener]
		tap           atomicTap
		topology      observer.List[TopologyObserver]
		interruptions observer.List[InterruptionListener]
	}

	Options struct {
		SampleRate      int // default 44100
		FramesPerBuffer int // default 512
		Logger          logrus.FieldLogger
		// FatalHandler is called with every FatalError before it is
		// returned.
		FatalHandler func(*FatalError)
	}

	// OutputMode selects where the mixer output goes.
	OutputMode int

	// PreRenderListener is notified on the audio thread before every
	// rendering quantum. This is what drives the master clock.
	PreRenderListener interface {
		PreRender(frameCount, sampleRate int)
	}

	// Tap receives every rendered block on the audio thread. It must not
	// retain the buffers, allocate or block.
	Tap interface {
		PostRender(buffers plink.BufferList)
	}

	// TopologyObserver is notified when channels are added or removed. The
	// notification carries no payload; re-query the channels.
	TopologyObserver interface {
		TopologyChanged()
	}

	// InterruptionListener is notified whenever the graph is stopped, so that
	// pending work depending on the audio running can be cancelled.
	InterruptionListener interface {
		AudioInterrupted()
	}

	PreRenderFunc        func(frameCount, sampleRate int)
	TapFunc              func(buffers plink.BufferList)
	TopologyObserverFunc func()
	InterruptionFunc     func()

	// Level is the metered level of one channel, in decibels.
	Level struct {
		Average float32
		Peak    float32
	}

	StereoLevel struct {
		Left, Right Level
	}

	// Snapshot is the saved state of a System.
	Snapshot struct {
		Channels []ChannelSnapshot `json:"channels" yaml:"channels"`
	}
)

const (
	// Play renders to the audio device in real time.
	Play OutputMode = iota
	// OfflineRender renders only when pulled, for recording.
	OfflineRender
)

const (
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
)

func (f PreRenderFunc) PreRender(frameCount, sampleRate int) { f(frameCount, sampleRate) }
func (f TapFunc) PostRender(buffers plink.BufferList)        { f(buffers) }
func (f TopologyObserverFunc) TopologyChanged()              { f() }
func (f InterruptionFunc) AudioInterrupted()                 { f() }

func (m OutputMode) String() string {
	switch m {
	case Play:
		return "play"
	case OfflineRender:
		return "offline render"
	}
	return "OutputMode(" + strconv.Itoa(int(m)) + ")"
}

func (m OutputMode) description() Description {
	if m == OfflineRender {
		return GenericOutput
	}
	return DefaultOutput
}

// New builds the fixed part of the graph on provider: a multichannel mixer
// connected to the device output, metering enabled on the mixer output. The
// graph is left initialized but not started.
func New(provider Provider, opts Options) (*System, error) {
	s := &System{
		provider:        provider,
		sampleRate:      opts.SampleRate,
		framesPerBuffer: opts.FramesPerBuffer,
		logger:          opts.Logger,
		fatalHandler:    opts.FatalHandler,
	}
	if s.sampleRate <= 0 {
		s.sampleRate = DefaultSampleRate
	}
	if s.framesPerBuffer <= 0 {
		s.framesPerBuffer = DefaultFramesPerBuffer
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if err := provider.Open(); err != nil {
		return nil, fmt.Errorf("could not open graph: %w", err)
	}
	var err error
	if s.mixer, err = provider.AddNode(MultiChannelMixer); err != nil {
		return nil, fmt.Errorf("could not add mixer: %w", err)
	}
	s.key = registry.register(s)
	if err := s.installOutput(Play); err != nil {
		s.Close()
		return nil, err
	}
	if err := provider.SetParameter(s.mixer, ParamVolume, OutputScope, 0, 1); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not set mixer volume: %w", err)
	}
	if err := provider.SetProperty(s.mixer, PropertyMeteringMode, OutputScope, 0, 1); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not enable mixer metering: %w", err)
	}
	if err := provider.Initialize(); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not initialize graph: %w", err)
	}
	return s, nil
}

// Close stops render notifications from reaching the System. The provider
// is not closed.
func (s *System) Close() {
	registry.unregister(s.key)
}

func (s *System) Key() RenderKey             { return s.key }
func (s *System) SampleRate() int            { return s.sampleRate }
func (s *System) FramesPerBuffer() int       { return s.framesPerBuffer }
func (s *System) OutputMode() OutputMode     { return s.outputMode }
func (s *System) Logger() logrus.FieldLogger { return s.logger }

// Start starts the graph rendering.
func (s *System) Start() error {
	if err := s.provider.Start(); err != nil {
		return fmt.Errorf("could not start graph: %w", err)
	}
	return nil
}

// Stop stops the graph and notifies the interruption listeners.
func (s *System) Stop() error {
	if err := s.provider.Stop(); err != nil {
		return fmt.Errorf("could not stop graph: %w", err)
	}
	for _, e := range s.interruptions.Snapshot() {
		e.Listener.AudioInterrupted()
	}
	return nil
}

func (s *System) Initialize() error {
	if err := s.provider.Initialize(); err != nil {
		return fmt.Errorf("could not initialize graph: %w", err)
	}
	return nil
}

func (s *System) Uninitialize() error {
	if err := s.provider.Uninitialize(); err != nil {
		return fmt.Errorf("could not uninitialize graph: %w", err)
	}
	return nil
}

// ModifyingGraph is the only way to change the topology of the graph: it
// stops the graph, optionally uninitializes it, runs mutation, optionally
// reinitializes it and starts it again. If any step fails, the remaining
// steps are skipped and the graph is left stopped, possibly half modified;
// the caller has to retry or restart it.
func (s *System) ModifyingGraph(reinitialize bool, mutation func() error) error {
	if err := s.Stop(); err != nil {
		return err
	}
	if reinitialize {
		if err := s.Uninitialize(); err != nil {
			return err
		}
	}
	if err := mutation(); err != nil {
		return err
	}
	if reinitialize {
		if err := s.Initialize(); err != nil {
			return err
		}
	}
	return s.Start()
}

// SetOutputMode switches the output node. It must be called while the graph
// is stopped, i.e. inside ModifyingGraph or between Stop and Start.
func (s *System) SetOutputMode(mode OutputMode) error {
	if mode == s.outputMode && s.out != 0 {
		return nil
	}
	if s.out != 0 {
		if err := s.provider.DisconnectOutput(s.mixer, 0); err != nil {
			return fmt.Errorf("could not disconnect mixer: %w", err)
		}
		if err := s.provider.RemoveNode(s.out); err != nil {
			return fmt.Errorf("could not remove %v output: %w", s.outputMode, err)
		}
		s.out = 0
	}
	return s.installOutput(mode)
}

func (s *System) installOutput(mode OutputMode) error {
	out, err := s.provider.AddNode(mode.description())
	if err != nil {
		return fmt.Errorf("could not add %v output: %w", mode, err)
	}
	if err := s.provider.Connect(s.mixer, 0, out, 0); err != nil {
		return fmt.Errorf("could not connect mixer to output: %w", err)
	}
	if err := s.provider.AddRenderNotify(out, s.key, renderNotify); err != nil {
		return fmt.Errorf("could not install render notification: %w", err)
	}
	s.out, s.outputMode = out, mode
	s.logger.WithField("mode", mode).Debug("output mode set")
	return nil
}

// RenderOutput renders frames from the output node into buffers.
func (s *System) RenderOutput(ts TimeStamp, frames int, buffers plink.BufferList) error {
	return s.provider.Render(s.out, ts, frames, buffers)
}

// renderNotify runs on the audio thread.
func renderNotify(key RenderKey, phase RenderPhase, _ TimeStamp, frames int, buffers plink.BufferList) {
	s := registry.lookup(key)
	if s == nil {
		return
	}
	switch phase {
	case PreRender:
		for _, e := range s.preRender.Snapshot() {
			e.Listener.PreRender(frames, s.sampleRate)
		}
	case PostRender:
		if t := s.tap.load(); t != nil {
			t.PostRender(buffers)
		}
	}
}

func (s *System) AddPreRenderListener(l PreRenderListener) observer.Registration {
	return s.preRender.Add(l)
}

// SetPostRenderTap sets the tap receiving the rendered output; nil removes
// it.
func (s *System) SetPostRenderTap(t Tap) {
	s.tap.store(t)
}

func (s *System) AddTopologyObserver(o TopologyObserver) observer.Registration {
	return s.topology.Add(o)
}

func (s *System) AddInterruptionListener(l InterruptionListener) observer.Registration {
	return s.interruptions.Add(l)
}

// Channels returns the channels in mixer input order.
func (s *System) Channels() []*Channel {
	return append([]*Channel(nil), s.channels...)
}

// ChannelNamed returns the first channel with the given name.
func (s *System) ChannelNamed(name string) (*Channel, bool) {
	for _, c := range s.channels {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// AddChannel instantiates the channel's nodes and connects it to the next
// free mixer input. Whenever the channel's nodes are replaced later, it is
// connected back automatically; if that fails, a FatalError is returned.
// If adding fails, the nodes instantiated so far are removed again and the
// channel stays detached.
func (s *System) AddChannel(ch *Channel) error {
	if ch.owner != 0 {
		return fmt.Errorf("channel %q already belongs to a system", ch.name)
	}
	index := len(s.channels)
	return s.ModifyingGraph(true, func() error {
		if err := s.attachChannel(ch, index); err != nil {
			if terr := ch.teardown(s.provider); terr != nil {
				s.logger.WithError(terr).WithField("channel", ch.name).Warn("could not release the nodes of a channel")
			}
			ch.index = -1
			return err
		}
		s.channels = append(s.channels, ch)
		s.headRegs = append(s.headRegs, ch.AddHeadObserver(reconnector{s}))
		ch.owner = s.key
		s.topologyChanged()
		return nil
	})
}

func (s *System) attachChannel(ch *Channel, index int) error {
	if err := ch.instantiate(s.provider); err != nil {
		return err
	}
	ch.index = index
	if err := s.connectChannel(ch); err != nil {
		return err
	}
	if err := s.provider.SetParameter(s.mixer, ParamVolume, InputScope, index, ch.gain); err != nil {
		return fmt.Errorf("could not set channel gain: %w", err)
	}
	if err := s.provider.SetParameter(s.mixer, ParamPan, InputScope, index, ch.pan); err != nil {
		return fmt.Errorf("could not set channel pan: %w", err)
	}
	return nil
}

// CreateChannel adds a new channel with a default name and no instrument.
func (s *System) CreateChannel() (*Channel, error) {
	ch := NewChannel("ch" + strconv.Itoa(len(s.channels)+1))
	if err := s.AddChannel(ch); err != nil {
		return nil, err
	}
	return ch, nil
}

type reconnector struct{ s *System }

func (r reconnector) HeadNodeChanged(ch *Channel) error {
	return r.s.connectChannel(ch)
}

// connectChannel connects the last node of the channel to its mixer input
// and enables metering there.
func (s *System) connectChannel(ch *Channel) error {
	err := s.provider.Connect(ch.tailNode(), 0, s.mixer, ch.index)
	if err == nil {
		err = s.provider.SetProperty(s.mixer, PropertyMeteringMode, InputScope, ch.index, 1)
	}
	if err == nil {
		err = s.provider.SetProperty(s.mixer, PropertyMeteringMode, OutputScope, 0, 1)
	}
	if err == nil {
		return nil
	}
	fe := &FatalError{Channel: ch.name, Index: ch.index, Err: err}
	s.logger.WithError(err).WithField("channel", ch.name).Error("channel reconnection failed")
	if s.fatalHandler != nil {
		s.fatalHandler(fe)
	}
	return fe
}

// Clear disconnects and removes the nodes of every channel and empties the
// channel list. The next channel added gets mixer input 0 again.
func (s *System) Clear() error {
	return s.ModifyingGraph(true, func() error {
		for i, ch := range s.channels {
			if err := ch.teardown(s.provider); err != nil {
				return fmt.Errorf("could not remove channel %q: %w", ch.name, err)
			}
			s.headRegs[i].Remove()
			ch.owner, ch.index = 0, -1
		}
		s.channels, s.headRegs = nil, nil
		s.topologyChanged()
		return nil
	})
}

func (s *System) topologyChanged() {
	for _, e := range s.topology.Snapshot() {
		e.Listener.TopologyChanged()
	}
}

func (s *System) checkIndex(index int) error {
	if index < 0 || index >= len(s.channels) {
		return fmt.Errorf("mixer input %d: %w", index, ErrChannelNotFound)
	}
	return nil
}

// Gain returns the volume of a mixer input.
func (s *System) Gain(index int) (float32, error) {
	if err := s.checkIndex(index); err != nil {
		return 0, err
	}
	return s.provider.Parameter(s.mixer, ParamVolume, InputScope, index)
}

func (s *System) SetGain(index int, v float32) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.provider.SetParameter(s.mixer, ParamVolume, InputScope, index, v)
}

// Pan returns the pan of a mixer input.
func (s *System) Pan(index int) (float32, error) {
	if err := s.checkIndex(index); err != nil {
		return 0, err
	}
	return s.provider.Parameter(s.mixer, ParamPan, InputScope, index)
}

func (s *System) SetPan(index int, v float32) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.provider.SetParameter(s.mixer, ParamPan, InputScope, index, v)
}

// SetNodeParameter sets a parameter of any node, e.g. of a channel's
// instrument. Parameters can be set while the graph is running.
func (s *System) SetNodeParameter(node NodeID, param ParamID, scope Scope, element int, value float32) error {
	return s.provider.SetParameter(node, param, scope, element, value)
}

func (s *System) NodeParameter(node NodeID, param ParamID, scope Scope, element int) (float32, error) {
	return s.provider.Parameter(node, param, scope, element)
}

// Level returns the metered level of a mixer input.
func (s *System) Level(index int) (StereoLevel, error) {
	if err := s.checkIndex(index); err != nil {
		return StereoLevel{}, err
	}
	return s.meterLevel(InputScope, index)
}

// MasterLevel returns the metered level of the mixer output.
func (s *System) MasterLevel() (StereoLevel, error) {
	return s.meterLevel(OutputScope, 0)
}

func (s *System) meterLevel(scope Scope, element int) (ret StereoLevel, err error) {
	read := func(p ParamID) float32 {
		if err != nil {
			return 0
		}
		var v float32
		v, err = s.provider.Parameter(s.mixer, p, scope, element)
		return v
	}
	ret.Left.Average = read(ParamPostAveragePower)
	ret.Left.Peak = read(ParamPostPeakHoldLevel)
	ret.Right.Average = read(ParamPostAveragePowerRight)
	ret.Right.Peak = read(ParamPostPeakHoldLevelRight)
	if err != nil {
		return StereoLevel{}, fmt.Errorf("could not read meter level: %w", err)
	}
	return ret, nil
}

// Snapshot returns the saved state of every channel.
func (s *System) Snapshot() (Snapshot, error) {
	ret := Snapshot{Channels: make([]ChannelSnapshot, len(s.channels))}
	for i, ch := range s.channels {
		var err error
		if ret.Channels[i], err = ch.Snapshot(); err != nil {
			return Snapshot{}, fmt.Errorf("could not snapshot channel %q: %w", ch.name, err)
		}
	}
	return ret, nil
}

// Restore clears the System and rebuilds the channels of snapshot.
func (s *System) Restore(snapshot Snapshot) error {
	if err := s.Clear(); err != nil {
		return err
	}
	for _, cs := range snapshot.Channels {
		if err := s.AddChannel(newChannelFromSnapshot(cs)); err != nil {
			return fmt.Errorf("could not restore channel %q: %w", cs.Name, err)
		}
	}
	return nil
}
