package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/cmd"
	"github.com/kineticfactory/plink/midifile"
	"github.com/kineticfactory/plink/transport"
	"github.com/kineticfactory/plink/version"
)

const defaultFormat = `{{title .Name}}: {{len .Cues}} cues, {{.BPM}} bpm, ends at {{.End.Beat}}:{{.End.TickInBeat | printf "%02d"}}
{{range .Cues}}{{.Time.Beat | printf "%4d"}}:{{.Time.TickInBeat | printf "%02d"}}  {{.Action | toString | trunc 60}}
{{end}}`

// listing is the data of the -format template.
type listing struct {
	Name string
	BPM  float64
	End  plink.Tick
	Cues []plink.Cue
}

func main() {
	to := flag.String("to", "", "Convert the score to `format`: json, yaml or mid. By default, the score is listed.")
	format := flag.String("format", defaultFormat, "Go template for listing the score. The sprig functions are available.")
	output := flag.String("o", "", "Output file. By default, writes to standard output.")
	bpm := flag.Float64("bpm", transport.DefaultBPM, "Tempo of the score when writing .mid files or listing .yml/.json scores.")
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
	if err := run(flag.Arg(0), *to, *format, *output, *bpm); err != nil {
		cmd.Report(err)
		os.Exit(cmd.ExitCode(err))
	}
}

func run(filename, to, format, output string, bpm float64) error {
	score, fileBPM, err := cmd.LoadScore(filename)
	if err != nil {
		return err
	}
	if fileBPM > 0 {
		bpm = fileBPM
	}
	var buf bytes.Buffer
	if err := convert(&buf, filename, score, to, format, bpm); err != nil {
		return err
	}
	if output == "" {
		_, err := io.Copy(os.Stdout, &buf)
		return err
	}
	if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
		return fault.Wrap(err, fmsg.With("could not write "+output))
	}
	return nil
}

func convert(w io.Writer, filename string, score plink.Score, to, format string, bpm float64) error {
	switch strings.ToLower(to) {
	case "":
		funcs := sprig.TxtFuncMap()
		funcs["title"] = cases.Title(language.English).String
		tmpl, err := template.New("listing").Funcs(funcs).Parse(format)
		if err != nil {
			return fault.Wrap(err, fmsg.With("invalid format"), ftag.With(ftag.InvalidArgument))
		}
		_, name := filepath.Split(filename)
		data := listing{
			Name: strings.TrimSuffix(name, filepath.Ext(name)),
			BPM:  bpm,
			End:  score.End(),
			Cues: score.Sorted().Cues,
		}
		if err := tmpl.Execute(w, data); err != nil {
			return fault.Wrap(err, fmsg.With("could not list the score"))
		}
	case "json":
		b, err := json.MarshalIndent(score, "", "  ")
		if err != nil {
			return fault.Wrap(err, fmsg.With("could not encode the score as json"))
		}
		_, err = w.Write(append(b, '\n'))
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(score); err != nil {
			return fault.Wrap(err, fmsg.With("could not encode the score as yaml"))
		}
		return enc.Close()
	case "mid", "midi":
		if err := midifile.Write(w, score, bpm); err != nil {
			return fault.Wrap(err, fmsg.With("could not encode the score as MIDI"))
		}
	default:
		return fault.New("unknown format "+to, fmsg.WithDesc("unknown format", "The score can be converted to json, yaml or mid."), ftag.With(ftag.InvalidArgument))
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Plink command line utility for listing and converting .yml/.json/.mid scores.\nUsage: %s [flags] path\n", os.Args[0])
	flag.PrintDefaults()
}
