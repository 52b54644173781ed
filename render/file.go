package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
	"github.com/kineticfactory/plink/sink"
)

// FileSink returns a SinkFactory for path, choosing the format by the file
// extension: .wav (16-bit), .raw (float32) or .pcm (signed 16-bit raw).
func FileSink(path string, sampleRate int) (SinkFactory, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return func() (plink.AudioSink, error) { return sink.NewWAVFile(path, sampleRate, 16, 2) }, nil
	case ".raw":
		return func() (plink.AudioSink, error) { return sink.NewRawFile(path, false) }, nil
	case ".pcm":
		return func() (plink.AudioSink, error) { return sink.NewRawFile(path, true) }, nil
	}
	return nil, fmt.Errorf("unknown audio file extension %q", filepath.Ext(path))
}

// ToFile renders sys into the file at path.
func ToFile(sys *graph.System, path string, mode RunoutMode, driver Driver, opts ...Option) (Result, error) {
	newSink, err := FileSink(path, sys.SampleRate())
	if err != nil {
		return Result{}, err
	}
	return Render(sys, newSink, mode, driver, opts...)
}
