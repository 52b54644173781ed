// Package midifile converts scores to and from Standard MIDI Files. Every
// cue becomes a text meta event at its time, at 24 ticks per quarter note.
package midifile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/kineticfactory/plink"
)

var (
	ErrNegativeTime   = errors.New("cue time before the start of the file")
	ErrTimeOutOfRange = errors.New("cue too far from the previous one")
	ErrZeroResolution = errors.New("zero ticks per quarter note")
)

// maxDelta is the largest delta time a variable length quantity can hold.
const maxDelta = 0x0FFFFFFF

// Write writes score as a single track file with a tempo event of bpm.
func Write(w io.Writer, score plink.Score, bpm float64) error {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(plink.TicksPerBeat)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(bpm))
	var last plink.Tick
	for i, c := range score.Sorted().Cues {
		if c.Time < 0 {
			return fmt.Errorf("cue %d at %v: %w", i, c.Time, ErrNegativeTime)
		}
		code, ok := c.Action.(plink.CodeStatement)
		if !ok {
			return fmt.Errorf("cue %d: %w: %T", i, plink.ErrUnknownCueAction, c.Action)
		}
		delta := c.Time.Since(last)
		if delta > maxDelta {
			return fmt.Errorf("cue %d at %v: %w", i, c.Time, ErrTimeOutOfRange)
		}
		tr.Add(uint32(delta), smf.MetaText(string(code)))
		last = c.Time
	}
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		return fmt.Errorf("could not add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("could not write midi file: %w", err)
	}
	return nil
}

func WriteFile(path string, score plink.Score, bpm float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create midi file: %w", err)
	}
	if err := Write(f, score, bpm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read reads the text meta events of all tracks as cues, rescaling the
// times to ticks, and returns the first tempo found (120 if none).
func Read(r io.Reader) (score plink.Score, bpm float64, err error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return plink.Score{}, 0, fmt.Errorf("could not read midi file: %w", err)
	}
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return plink.Score{}, 0, errors.New("only metric time format is supported")
	}
	resolution := int64(mt.Resolution())
	if resolution == 0 {
		return plink.Score{}, 0, ErrZeroResolution
	}
	bpm = 120
	tempoFound := false
	for _, tr := range s.Tracks {
		var abs int64
		for _, ev := range tr {
			abs += int64(ev.Delta)
			var text string
			var tempo float64
			switch {
			case ev.Message.GetMetaText(&text):
				t := plink.Tick(abs * plink.TicksPerBeat / resolution)
				score.Append(plink.Cue{Time: t, Action: plink.CodeStatement(text)})
			case !tempoFound && ev.Message.GetMetaTempo(&tempo):
				bpm, tempoFound = tempo, true
			}
		}
	}
	return score.Sorted(), bpm, nil
}
