package sink

import (
	"errors"

	"github.com/kineticfactory/plink"
)

// Tee feeds every buffer to all of its sinks.
type Tee []plink.AudioSink

func (t Tee) Feed(buffers plink.BufferList) error {
	var errs []error
	for _, s := range t {
		if err := s.Feed(buffers); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Close() error {
	var errs []error
	for _, s := range t {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
