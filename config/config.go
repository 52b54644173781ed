// Package config loads the settings shared by the plink commands from a YAML
// file. Missing fields get their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/graph/memgraph"
	"github.com/kineticfactory/plink/render"
	"github.com/kineticfactory/plink/transport"
)

type (
	Config struct {
		SampleRate      int     `yaml:"sampleRate"`
		FramesPerBuffer int     `yaml:"framesPerBuffer"`
		BPM             float64 `yaml:"bpm"`
		Runout          Runout  `yaml:"runout"`
		LogLevel        string  `yaml:"logLevel"`
		OutputDir       string  `yaml:"outputDir"`
		// Channels lists the mixer channels built before a score is played.
		// Without any, a single sine channel "ch1" is used.
		Channels []Channel `yaml:"channels,omitempty"`
	}

	Runout struct {
		BufferThreshold int `yaml:"bufferThreshold"`
		MaxExtraFrames  int `yaml:"maxExtraFrames"`
	}

	Channel struct {
		Name       string              `yaml:"name"`
		Instrument *graph.Description  `yaml:"instrument,omitempty"`
		Inserts    []graph.Description `yaml:"inserts,omitempty"`
		Gain       *float32            `yaml:"gain,omitempty"`
		Pan        float32             `yaml:"pan,omitempty"`
	}
)

// Tags attached to the errors of this package, for mapping them to exit codes.
const (
	TagNotFound ftag.Kind = "config_not_found"
	TagInvalid  ftag.Kind = "config_invalid"
)

func Default() Config {
	return Config{
		SampleRate:      graph.DefaultSampleRate,
		FramesPerBuffer: graph.DefaultFramesPerBuffer,
		BPM:             transport.DefaultBPM,
		Runout:          Runout{BufferThreshold: 8, MaxExtraFrames: 1000},
		LogLevel:        "info",
	}
}

// Load reads the configuration from path. An empty path gives the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fault.Wrap(err, fmsg.With("could not expand config path"), ftag.With(TagInvalid))
	}
	data, err := os.ReadFile(p)
	if err != nil {
		tag := ftag.Internal
		if errors.Is(err, os.ErrNotExist) {
			tag = TagNotFound
		}
		return Config{}, fault.Wrap(err, fmsg.WithDesc("could not read config", "The configuration file "+p+" could not be read."), ftag.With(tag))
	}
	return Parse(data)
}

// Parse decodes the configuration from YAML and fills in the defaults.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fault.Wrap(err, fmsg.With("could not parse config"), ftag.With(TagInvalid))
	}
	def := Default()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = def.FramesPerBuffer
	}
	if c.BPM <= 0 {
		c.BPM = def.BPM
	}
	if c.Runout.BufferThreshold <= 0 {
		c.Runout.BufferThreshold = def.Runout.BufferThreshold
	}
	if c.Runout.MaxExtraFrames <= 0 {
		c.Runout.MaxExtraFrames = def.Runout.MaxExtraFrames
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return Config{}, fault.Wrap(err, fmsg.With("invalid log level"), ftag.With(TagInvalid))
	}
	if c.OutputDir != "" {
		dir, err := homedir.Expand(c.OutputDir)
		if err != nil {
			return Config{}, fault.Wrap(err, fmsg.With("could not expand output directory"), ftag.With(TagInvalid))
		}
		c.OutputDir = dir
	}
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return Config{}, fault.New(fmt.Sprintf("channel %d has no name", i), ftag.With(TagInvalid))
		}
	}
	return c, nil
}

// RunoutMode returns the run-out of offline renders.
func (c Config) RunoutMode() render.RunoutMode {
	return render.RunoutToSilence{BufferThreshold: c.Runout.BufferThreshold, MaxExtraFrames: c.Runout.MaxExtraFrames}
}

// ConfigureLogger sets the level of l from LogLevel.
func (c Config) ConfigureLogger(l *logrus.Logger) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
}

// Build adds the configured channels to sys.
func (c Config) Build(sys *graph.System) error {
	channels := c.Channels
	if len(channels) == 0 {
		channels = []Channel{{Name: "ch1", Instrument: &memgraph.Sine}}
	}
	for _, cc := range channels {
		ch := graph.NewChannel(cc.Name)
		if err := sys.AddChannel(ch); err != nil {
			return fault.Wrap(err, fmsg.With("could not add channel "+cc.Name))
		}
		if cc.Instrument != nil {
			if err := ch.SetInstrument(*cc.Instrument); err != nil {
				return fault.Wrap(err, fmsg.With("could not set instrument of channel "+cc.Name))
			}
		}
		for _, d := range cc.Inserts {
			if err := ch.AddInsert(d); err != nil {
				return fault.Wrap(err, fmsg.With("could not add insert to channel "+cc.Name))
			}
		}
		gain := float32(1)
		if cc.Gain != nil {
			gain = *cc.Gain
		}
		if err := ch.SetGain(gain); err != nil {
			return fault.Wrap(err, fmsg.With("could not set gain of channel "+cc.Name))
		}
		if err := ch.SetPan(cc.Pan); err != nil {
			return fault.Wrap(err, fmsg.With("could not set pan of channel "+cc.Name))
		}
	}
	return nil
}
