package graph

import (
	"fmt"

	"github.com/kineticfactory/plink"
)

type (
	// NodeID identifies a node within one Provider. The zero value is never a
	// valid node.
	NodeID int32

	// ComponentType is the broad category of a node.
	ComponentType int

	// Description tells a Provider which kind of node to instantiate.
	Description struct {
		Type    ComponentType `json:"type" yaml:"type"`
		SubType string        `json:"subType" yaml:"subType"`
	}

	// Scope selects which side of a node a parameter or property applies to.
	Scope int

	// ParamID identifies a real-valued node parameter.
	ParamID int

	// PropertyID identifies an integer-valued node property.
	PropertyID int

	// TimeStamp is the position of a rendered block, in frames from the
	// start of rendering.
	TimeStamp struct {
		SampleTime int64
	}

	// RenderKey is a small integer handle that render notifications carry
	// instead of a pointer to their owner.
	RenderKey uint32

	// RenderPhase tells a RenderNotifyFunc if it is being called before or
	// after the output node renders.
	RenderPhase int

	// RenderNotifyFunc is called on the audio thread around the rendering of
	// an output node. In the pre-render phase buffers is the still unrendered
	// output; in the post-render phase it holds the rendered frames. It must
	// not allocate or block.
	RenderNotifyFunc func(key RenderKey, phase RenderPhase, ts TimeStamp, frames int, buffers plink.BufferList)

	// Provider is the set of graph primitives a System is built on. It
	// creates and connects nodes and renders frames from them; the System
	// never looks further into it.
	//
	// All methods except Render are called from the control context.
	// Connect replaces any existing connection to the destination bus.
	Provider interface {
		Open() error
		Initialize() error
		Uninitialize() error
		Start() error
		Stop() error
		AddNode(desc Description) (NodeID, error)
		RemoveNode(node NodeID) error
		Connect(src NodeID, srcBus int, dst NodeID, dstBus int) error
		DisconnectOutput(node NodeID, bus int) error
		DisconnectAll(node NodeID) error
		SetParameter(node NodeID, param ParamID, scope Scope, element int, value float32) error
		Parameter(node NodeID, param ParamID, scope Scope, element int) (float32, error)
		SetProperty(node NodeID, prop PropertyID, scope Scope, element int, value int) error
		Render(node NodeID, ts TimeStamp, frames int, buffers plink.BufferList) error
		AddRenderNotify(node NodeID, key RenderKey, fn RenderNotifyFunc) error
	}
)

const (
	OutputComponent ComponentType = iota
	MixerComponent
	InstrumentComponent
	EffectComponent
)

const (
	GlobalScope Scope = iota
	InputScope
	OutputScope
)

const (
	PreRender RenderPhase = iota
	PostRender
)

// Parameters every Provider understands on its mixer. The level parameters
// are read-only and measured only when metering is enabled; they are in
// decibels and the right channel is the next ParamID.
const (
	ParamVolume ParamID = iota
	ParamPan
	ParamPostAveragePower
	ParamPostAveragePowerRight
	ParamPostPeakHoldLevel
	ParamPostPeakHoldLevelRight
)

// PropertyMeteringMode enables (1) or disables (0) metering of an input or
// the output of a mixer.
const PropertyMeteringMode PropertyID = 0

// Descriptions of the nodes the System itself instantiates.
var (
	DefaultOutput     = Description{Type: OutputComponent, SubType: "default"}
	GenericOutput     = Description{Type: OutputComponent, SubType: "generic"}
	MultiChannelMixer = Description{Type: MixerComponent, SubType: "multichannel"}
	PassThrough       = Description{Type: EffectComponent, SubType: "passthrough"}
)

func (t ComponentType) String() string {
	switch t {
	case OutputComponent:
		return "output"
	case MixerComponent:
		return "mixer"
	case InstrumentComponent:
		return "instrument"
	case EffectComponent:
		return "effect"
	}
	return fmt.Sprintf("ComponentType(%d)", int(t))
}

func (d Description) String() string {
	return d.Type.String() + "/" + d.SubType
}

func (t ComponentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ComponentType) UnmarshalText(text []byte) error {
	for c := OutputComponent; c <= EffectComponent; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown component type %q", text)
}

func (p RenderPhase) String() string {
	if p == PreRender {
		return "pre-render"
	}
	return "post-render"
}
