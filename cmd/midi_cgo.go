//go:build cgo

package cmd

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIInputs opens the rtmidi driver and lists its inputs. Call close when
// done with them.
func MIDIInputs() (ins []drivers.In, close func(), err error) {
	d, err := rtmididrv.New()
	if err != nil {
		return nil, nil, fmt.Errorf("could not open rtmidi driver: %w", err)
	}
	ins, err = d.Ins()
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	return ins, func() { d.Close() }, nil
}
