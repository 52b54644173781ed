// Package midiclock slaves the transport to an external MIDI clock. Every
// timing clock message (24 per quarter note) advances the master time by one
// tick, and the start, continue and stop messages start and stop the
// transport.
package midiclock

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/transport"
)

// System real-time status bytes.
const (
	timingClock = 0xF8
	start       = 0xFA
	cont        = 0xFB
	stop        = 0xFC
)

type (
	// Controller receives the transport commands of the clock master.
	// transport.Transport implements it.
	Controller interface {
		RewindAndStart()
		StartInPlace()
		Stop()
	}

	// Source counts MIDI timing clocks as master ticks. It implements
	// transport.Clock, and ticks its Ticker once per rendering quantum when
	// registered as a pre-render listener of the graph.
	Source struct {
		ticks    atomic.Int64
		clocks   atomic.Int64
		ticker   transport.Ticker
		control  Controller
		logger   logrus.FieldLogger
		stopFunc func()
	}
)

func New(ticker transport.Ticker, control Controller, logger logrus.FieldLogger) *Source {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Source{ticker: ticker, control: control, logger: logger}
}

// TickTime returns the number of timing clocks received.
func (s *Source) TickTime() plink.Tick {
	return plink.Tick(s.ticks.Load())
}

// PreRender ticks the Ticker with the current master time.
func (s *Source) PreRender(frameCount, sampleRate int) {
	if s.ticker != nil {
		s.ticker.Tick(s.TickTime())
	}
}

// HandleMessage handles one incoming MIDI message; other messages than
// timing clock, start, continue and stop are ignored.
func (s *Source) HandleMessage(msg midi.Message, timestampms int32) {
	if len(msg) == 0 {
		return
	}
	switch msg[0] {
	case timingClock:
		s.ticks.Add(1)
		s.clocks.Add(1)
	case start:
		s.logger.WithField("ms", timestampms).Debug("midi start")
		if s.control != nil {
			s.control.RewindAndStart()
		}
	case cont:
		s.logger.WithField("ms", timestampms).Debug("midi continue")
		if s.control != nil {
			s.control.StartInPlace()
		}
	case stop:
		s.logger.WithField("ms", timestampms).Debug("midi stop")
		if s.control != nil {
			s.control.Stop()
		}
	}
}

// Clocks returns the number of timing clocks received.
func (s *Source) Clocks() int64 {
	return s.clocks.Load()
}

// Listen opens in, if needed, and starts handling its messages.
func (s *Source) Listen(in drivers.In) error {
	if !in.IsOpen() {
		if err := in.Open(); err != nil {
			return fmt.Errorf("opening MIDI input failed: %w", err)
		}
	}
	stopFunc, err := midi.ListenTo(in, s.HandleMessage)
	if err != nil {
		return fmt.Errorf("listening to MIDI input failed: %w", err)
	}
	s.stopFunc = stopFunc
	return nil
}

// Close stops listening.
func (s *Source) Close() {
	if s.stopFunc != nil {
		s.stopFunc()
		s.stopFunc = nil
	}
}

// FindInput returns the first of ins whose name starts with prefix.
func FindInput(ins []drivers.In, prefix string) (drivers.In, error) {
	for _, in := range ins {
		if strings.HasPrefix(in.String(), prefix) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input device found with prefix %q", prefix)
}
