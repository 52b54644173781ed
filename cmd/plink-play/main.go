package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/sirupsen/logrus"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/cmd"
	"github.com/kineticfactory/plink/config"
	"github.com/kineticfactory/plink/engine"
	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/midiclock"
	"github.com/kineticfactory/plink/oto"
	"github.com/kineticfactory/plink/render"
	"github.com/kineticfactory/plink/sink"
	"github.com/kineticfactory/plink/version"
)

func main() {
	configFile := flag.String("c", "", "Configuration file (.yml).")
	midiPrefix := flag.String("midi", "", "Slave to the MIDI clock of the first input whose name starts with `prefix`; the score starts on MIDI start.")
	bpm := flag.Float64("bpm", 0, "Tempo in beats per minute; overrides the configuration and the tempo of .mid files.")
	bufferSize := flag.Duration("buffer", 50*time.Millisecond, "Size of the audio device buffer.")
	pcm := flag.Bool("pcm", false, "Play 16-bit signed PCM instead of float32 samples.")
	record := flag.String("record", "", "Also record the played audio into `file` (.wav, .raw or .pcm).")
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(cmd.ExitOK)
	}
	if flag.NArg() != 1 || *help {
		flag.Usage()
		os.Exit(cmd.ExitOK)
	}
	if err := play(flag.Arg(0), *configFile, *midiPrefix, *record, *bpm, *bufferSize, *pcm); err != nil {
		cmd.Report(err)
		os.Exit(cmd.ExitCode(err))
	}
}

func play(filename, configFile, midiPrefix, record string, bpm float64, bufferSize time.Duration, pcm bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger := cmd.NewLogger(cfg)
	score, fileBPM, err := cmd.LoadScore(filename)
	if err != nil {
		return err
	}
	opts := engine.Options{Logger: logger, Meter: true}
	var recorder *sink.Tap
	if record != "" {
		newSink, err := render.FileSink(record, cfg.SampleRate)
		if err != nil {
			return fault.Wrap(err, ftag.With(ftag.InvalidArgument))
		}
		s, err := newSink()
		if err != nil {
			return fault.Wrap(err, fmsg.With("could not create "+record))
		}
		recorder = sink.NewTap(s, 2, cfg.FramesPerBuffer, recordQueueLength, logger)
		opts.Tap = recorder
	}
	player, err := cmd.NewPlayer(cfg, opts)
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return err
	}
	defer player.Close()
	e := player.Engine
	if recorder != nil {
		defer func() {
			// the graph must not render into the recorder while it is closed
			if err := e.System().Stop(); err != nil {
				logger.WithError(err).Error("could not stop audio graph")
			}
			if err := recorder.Close(); err != nil {
				logger.WithError(err).Error("could not finish recording")
			}
			if n := recorder.Dropped(); n > 0 {
				logger.WithField("buffers", n).Warn("recording dropped buffers")
			}
		}()
	}
	switch {
	case bpm > 0:
		e.Metronome().SetBPM(bpm)
	case fileBPM > 0:
		e.Metronome().SetBPM(fileBPM)
	}
	if err := player.Executor.Prepare(score); err != nil {
		return fault.Wrap(err, fmsg.With("invalid cue in "+filename), ftag.With(ftag.InvalidArgument))
	}
	if midiPrefix != "" {
		ins, closeMIDI, err := cmd.MIDIInputs()
		if err != nil {
			return fault.Wrap(err, fmsg.With("cannot open MIDI connection"))
		}
		defer closeMIDI()
		in, err := midiclock.FindInput(ins, midiPrefix)
		if err != nil {
			return fault.Wrap(err, fmsg.WithDesc("cannot open MIDI connection", "No MIDI input matches "+midiPrefix), ftag.With(ftag.NotFound))
		}
		src := midiclock.New(e.Transport(), e.Transport(), logger)
		e.UseClock(src)
		if err := src.Listen(in); err != nil {
			return fault.Wrap(err, fmsg.With("could not listen to MIDI input"))
		}
		defer src.Close()
		logger.WithField("input", in.String()).Info("waiting for MIDI start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(ctx) }()

	audio, err := oto.NewContext(cfg.SampleRate, bufferSize, pcm)
	if err != nil {
		return fault.Wrap(err, fmsg.With("could not open audio device"))
	}
	out := audio.Play(player.Provider.Pull, cfg.FramesPerBuffer)
	defer out.Close()
	if err := e.Do(ctx, e.System().Start); err != nil {
		return fault.Wrap(err, fmsg.With("could not start audio graph"))
	}
	if midiPrefix == "" {
		if err := e.PlayScore(ctx, score); err != nil {
			return fault.Wrap(err, fmsg.With("could not play "+filename))
		}
	} else {
		err := e.Do(ctx, func() error {
			e.Transport().SetScore(score)
			return nil
		})
		if err != nil {
			return fault.Wrap(err, fmsg.With("could not play "+filename))
		}
	}

	end := score.End().Add(plink.Beats(1))
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-runDone
			return nil
		case err := <-runDone:
			return err
		case <-ticker.C:
			var master graph.StereoLevel
			e.Do(ctx, func() error {
				var err error
				master, err = e.System().MasterLevel()
				return err
			})
			pos := e.Transport().ProgramPosition()
			v := e.Volume()
			logger.WithFields(logrus.Fields{
				"position": pos,
				"peak":     fmt.Sprintf("%.1f/%.1f dB", v.Peak[0], v.Peak[1]),
				"mixer":    fmt.Sprintf("%.1f/%.1f dB", master.Left.Peak, master.Right.Peak),
				"dropped":  e.CuePlayer().Dropped(),
			}).Debug("playing")
			if midiPrefix == "" && pos >= end {
				cancel()
				<-runDone
				return nil
			}
		}
	}
}

// recordQueueLength is the number of buffers the recorder can fall behind
// the audio device before dropping.
const recordQueueLength = 256

func printUsage() {
	fmt.Fprintf(os.Stderr, "Plink command line utility for playing a .yml/.json/.mid score.\nUsage: %s [flags] path\n", os.Args[0])
	flag.PrintDefaults()
}
