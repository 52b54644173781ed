package graph

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrConnectionFailed = errors.New("connection failed")
	ErrNotInitialized   = errors.New("graph not initialized")
	ErrChannelNotFound  = errors.New("channel not found")
)

// FatalError reports a broken invariant of the graph: a channel could not be
// wired back to the mixer after its head node changed. The graph should not
// be used any more; the host decides whether to rebuild it or exit.
type FatalError struct {
	Channel string
	Index   int
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: could not connect channel %q to mixer input %d: %v", e.Channel, e.Index, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
