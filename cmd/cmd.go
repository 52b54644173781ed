// Package cmd holds the setup shared by the plink commands.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/config"
	"github.com/kineticfactory/plink/engine"
	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/graph/memgraph"
	"github.com/kineticfactory/plink/midifile"
)

// Exit codes of the commands.
const (
	ExitOK = iota
	ExitFailure
	ExitUsage
	ExitNotFound
)

// Player is an engine running on the in-memory graph.
type Player struct {
	Engine   *engine.Engine
	Provider *memgraph.Provider
	Executor *engine.CommandExecutor
}

// NewLogger returns a logger writing to standard error at the configured
// level.
func NewLogger(cfg config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	cfg.ConfigureLogger(l)
	return l
}

// LoadScore reads a score from a .json, .yml or .mid file. For a MIDI file
// the tempo of the file is returned too; otherwise bpm is 0.
func LoadScore(path string) (score plink.Score, bpm float64, err error) {
	if strings.EqualFold(filepath.Ext(path), ".mid") {
		f, err := os.Open(path)
		if err != nil {
			return plink.Score{}, 0, fault.Wrap(err, fmsg.With("could not open "+path), ftag.With(tagOf(err)))
		}
		defer f.Close()
		score, bpm, err = midifile.Read(f)
		if err != nil {
			return plink.Score{}, 0, fault.Wrap(err, fmsg.With("could not read MIDI file "+path), ftag.With(ftag.InvalidArgument))
		}
		return score, bpm, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return plink.Score{}, 0, fault.Wrap(err, fmsg.With("could not read "+path), ftag.With(tagOf(err)))
	}
	score, err = plink.ParseScore(data)
	if err != nil {
		return plink.Score{}, 0, fault.Wrap(err, fmsg.With("could not parse "+path), ftag.With(ftag.InvalidArgument))
	}
	return score, 0, nil
}

func tagOf(err error) ftag.Kind {
	if errors.Is(err, os.ErrNotExist) {
		return ftag.NotFound
	}
	return ftag.Internal
}

// NewPlayer builds the channels of cfg on a new in-memory graph and puts an
// engine executing the command language on top of it.
func NewPlayer(cfg config.Config, opts engine.Options) (*Player, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
		opts.Logger = logger
	}
	p := memgraph.New(cfg.SampleRate, cfg.FramesPerBuffer)
	sys, err := graph.New(p, graph.Options{
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		Logger:          logger,
		FatalHandler: func(e *graph.FatalError) {
			logger.WithError(e).Error("graph is broken")
		},
	})
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("could not create audio graph"))
	}
	if err := cfg.Build(sys); err != nil {
		sys.Close()
		return nil, err
	}
	e := engine.New(sys, nil, opts)
	e.Metronome().SetBPM(cfg.BPM)
	x := engine.NewCommandExecutor(sys, e.Metronome())
	e.SetExecutor(x)
	return &Player{Engine: e, Provider: p, Executor: x}, nil
}

func (p *Player) Close() {
	p.Engine.System().Close()
}

// ExitCode maps the tag of err to the exit code of the command.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch ftag.Get(err) {
	case ftag.NotFound, config.TagNotFound:
		return ExitNotFound
	case ftag.InvalidArgument, config.TagInvalid:
		return ExitUsage
	}
	return ExitFailure
}

// Report prints err to standard error, with the user-facing description if
// it has one.
func Report(err error) {
	if issue := fmsg.GetIssue(err); issue != "" {
		fmt.Fprintf(os.Stderr, "%v\n  %v\n", err, issue)
		return
	}
	fmt.Fprintln(os.Stderr, err)
}
