//go:build !cgo

package cmd

import (
	"errors"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// MIDIInputs fails: with no cgo, there is no MIDI driver.
func MIDIInputs() (ins []drivers.In, close func(), err error) {
	return nil, nil, errors.New("MIDI is not available in builds without cgo")
}
