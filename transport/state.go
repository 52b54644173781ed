package transport

import (
	"fmt"

	"github.com/kineticfactory/plink"
)

type (
	// TransmissionState tells how the master clock is converted into the
	// program position, if at all. It is one of Stopped, Starting or Running.
	TransmissionState interface {
		isTransmissionState()
	}

	// Stopped means the program position stays at Pos.
	Stopped struct{ Pos plink.Tick }

	// Starting means the transport starts running from Pos at the next tick.
	Starting struct{ Pos plink.Tick }

	// Running means the program position is master clock + Offset.
	Running struct{ Offset plink.Duration }
)

func (Stopped) isTransmissionState()  {}
func (Starting) isTransmissionState() {}
func (Running) isTransmissionState()  {}

func (s Stopped) String() string  { return fmt.Sprintf("stopped(%v)", s.Pos) }
func (s Starting) String() string { return fmt.Sprintf("starting(%v)", s.Pos) }
func (s Running) String() string  { return fmt.Sprintf("running(%+d)", int64(s.Offset)) }

// position returns the program position in the state, given the current
// master clock.
func position(state TransmissionState, master plink.Tick) plink.Tick {
	switch s := state.(type) {
	case Stopped:
		return s.Pos
	case Starting:
		return s.Pos
	case Running:
		return master.Add(s.Offset)
	default:
		panic(fmt.Sprintf("unknown transmission state %T", state))
	}
}
