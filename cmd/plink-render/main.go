package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kineticfactory/plink/cmd"
	"github.com/kineticfactory/plink/config"
	"github.com/kineticfactory/plink/engine"
	"github.com/kineticfactory/plink/render"
	"github.com/kineticfactory/plink/version"
)

func main() {
	configFile := flag.String("c", "", "Configuration file (.yml).")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, the output directory of the configuration, or the working directory.")
	rawOut := flag.Bool("raw", false, "Output .raw files instead of .wav. By default, saves stereo float32 samples.")
	pcm := flag.Bool("pcm", false, "With -raw, convert the samples to 16-bit signed PCM.")
	runout := flag.String("runout", "", "Run-out after the score as `threshold,max`: stop after threshold silent buffers, or max extra buffers. 0 disables the run-out.")
	bpm := flag.Float64("bpm", 0, "Tempo in beats per minute; overrides the configuration and the tempo of .mid files.")
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(cmd.ExitOK)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(cmd.ExitOK)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		cmd.Report(err)
		os.Exit(cmd.ExitCode(err))
	}
	if *directory != "" {
		cfg.OutputDir = *directory
	}
	mode := cfg.RunoutMode()
	if *runout != "" {
		if mode, err = parseRunout(*runout); err != nil {
			cmd.Report(err)
			os.Exit(cmd.ExitCode(err))
		}
	}
	logger := cmd.NewLogger(cfg)
	printer := message.NewPrinter(language.English)
	ext := ".wav"
	if *rawOut {
		ext = ".raw"
		if *pcm {
			ext = ".pcm"
		}
	}
	process := func(filename string) error {
		score, fileBPM, err := cmd.LoadScore(filename)
		if err != nil {
			return err
		}
		player, err := cmd.NewPlayer(cfg, engine.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer player.Close()
		switch {
		case *bpm > 0:
			player.Engine.Metronome().SetBPM(*bpm)
		case fileBPM > 0:
			player.Engine.Metronome().SetBPM(fileBPM)
		}
		out, err := outputPath(cfg.OutputDir, filename, ext)
		if err != nil {
			return err
		}
		newSink, err := render.FileSink(out, cfg.SampleRate)
		if err != nil {
			return fault.Wrap(err, ftag.With(ftag.InvalidArgument))
		}
		res, err := player.Engine.RenderScore(score, newSink, mode)
		if err != nil {
			return fault.Wrap(err, fmsg.With("could not render "+filename))
		}
		printer.Printf("%s: %d frames (%.2f s), %d run-out buffers, %d failed buffers\n",
			out, res.Frames, float64(res.Frames)/float64(cfg.SampleRate), res.RunoutBuffers, res.FailedFrames)
		if n := player.Engine.ExecutionFailures(); n > 0 {
			printer.Printf("%s: %d cues failed\n", filename, n)
		}
		return nil
	}
	retval := cmd.ExitOK
	for _, param := range flag.Args() {
		files := []string{param}
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			files = nil
			for _, pattern := range []string{"*.yml", "*.json", "*.mid"} {
				m, err := filepath.Glob(filepath.Join(param, pattern))
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not glob the path %v for %v files: %v\n", param, pattern, err)
					retval = cmd.ExitFailure
					continue
				}
				files = append(files, m...)
			}
		}
		for _, file := range files {
			if err := process(file); err != nil {
				cmd.Report(err)
				retval = cmd.ExitCode(err)
			}
		}
	}
	os.Exit(retval)
}

func parseRunout(s string) (render.RunoutMode, error) {
	if s == "0" {
		return render.RunoutNone{}, nil
	}
	threshold, max, ok := strings.Cut(s, ",")
	t, errT := strconv.Atoi(threshold)
	m, errM := strconv.Atoi(max)
	if !ok || errT != nil || errM != nil || t <= 0 || m < 0 {
		return nil, fault.New("invalid run-out "+strconv.Quote(s),
			fmsg.WithDesc("invalid run-out", "The run-out is given as threshold,max, e.g. 8,1000."),
			ftag.With(ftag.InvalidArgument))
	}
	return render.RunoutToSilence{BufferThreshold: t, MaxExtraFrames: m}, nil
}

func outputPath(dir, filename, ext string) (string, error) {
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return "", fault.Wrap(err, fmsg.With("could not get working directory, specify the output directory explicitly"))
		}
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fault.Wrap(err, fmsg.With("could not create output directory "+dir))
	}
	_, name := filepath.Split(filename)
	return filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+ext), nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Plink command line utility for rendering .yml/.json/.mid scores to audio files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
