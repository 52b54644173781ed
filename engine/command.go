package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/graph/memgraph"
)

type (
	// Executor runs the code of a cue.
	Executor interface {
		Execute(code plink.CodeStatement) error
	}

	ExecutorFunc func(code plink.CodeStatement) error

	// CommandExecutor runs a tiny command language for setting parameters:
	// statements separated by ";", each either
	//
	//	<channel> <param> <value>   e.g. "ch1 gate 1", "bass gain 0.5"
	//	tempo <bpm>
	//
	// where param is one of gate, freq, amp, gain or pan. Statements are
	// parsed once and cached; Prepare parses the statements of a score in
	// advance so that executing them does not allocate.
	CommandExecutor struct {
		sys   *graph.System
		tempo TempoSetter

		mu    sync.RWMutex
		cache map[plink.CodeStatement][]command
	}

	// TempoSetter changes the tempo; transport.Metronome implements it.
	TempoSetter interface {
		SetBPM(bpm float64)
	}

	command struct {
		channel string
		param   string
		value   float32
	}
)

var ErrSyntax = errors.New("syntax error")

var instrumentParams = map[string]graph.ParamID{
	"gate": memgraph.ParamGate,
	"freq": memgraph.ParamFrequency,
	"amp":  memgraph.ParamAmplitude,
}

func (f ExecutorFunc) Execute(code plink.CodeStatement) error { return f(code) }

func NewCommandExecutor(sys *graph.System, tempo TempoSetter) *CommandExecutor {
	return &CommandExecutor{sys: sys, tempo: tempo, cache: map[plink.CodeStatement][]command{}}
}

// Prepare parses all the statements of score, returning the first error.
func (e *CommandExecutor) Prepare(score plink.Score) error {
	for i, c := range score.Cues {
		code, ok := c.Action.(plink.CodeStatement)
		if !ok {
			continue
		}
		if _, err := e.compile(code); err != nil {
			return fmt.Errorf("cue %d: %w", i, err)
		}
	}
	return nil
}

func (e *CommandExecutor) Execute(code plink.CodeStatement) error {
	cmds, err := e.compile(code)
	if err != nil {
		return err
	}
	for _, c := range cmds {
		if err := e.run(c); err != nil {
			return fmt.Errorf("%q: %w", code, err)
		}
	}
	return nil
}

func (e *CommandExecutor) compile(code plink.CodeStatement) ([]command, error) {
	e.mu.RLock()
	cmds, ok := e.cache[code]
	e.mu.RUnlock()
	if ok {
		return cmds, nil
	}
	cmds, err := parseCommands(string(code))
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[code] = cmds
	e.mu.Unlock()
	return cmds, nil
}

func parseCommands(code string) ([]command, error) {
	var ret []command
	for _, stmt := range strings.Split(code, ";") {
		f := strings.Fields(stmt)
		switch {
		case len(f) == 0:
			continue
		case len(f) == 2 && f[0] == "tempo":
			v, err := strconv.ParseFloat(f[1], 32)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("%w: invalid tempo %q", ErrSyntax, f[1])
			}
			ret = append(ret, command{param: "tempo", value: float32(v)})
		case len(f) == 3:
			if _, ok := instrumentParams[f[1]]; !ok && f[1] != "gain" && f[1] != "pan" {
				return nil, fmt.Errorf("%w: unknown parameter %q", ErrSyntax, f[1])
			}
			v, err := strconv.ParseFloat(f[2], 32)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid value %q", ErrSyntax, f[2])
			}
			ret = append(ret, command{channel: f[0], param: f[1], value: float32(v)})
		default:
			return nil, fmt.Errorf("%w: %q", ErrSyntax, strings.TrimSpace(stmt))
		}
	}
	return ret, nil
}

func (e *CommandExecutor) run(c command) error {
	if c.param == "tempo" {
		if e.tempo != nil {
			e.tempo.SetBPM(float64(c.value))
		}
		return nil
	}
	ch, ok := e.sys.ChannelNamed(c.channel)
	if !ok {
		return fmt.Errorf("%q: %w", c.channel, graph.ErrChannelNotFound)
	}
	switch c.param {
	case "gain":
		return ch.SetGain(c.value)
	case "pan":
		return ch.SetPan(c.value)
	}
	return e.sys.SetNodeParameter(ch.HeadNode(), instrumentParams[c.param], graph.GlobalScope, 0, c.value)
}
