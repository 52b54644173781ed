// Package oto plays the output of a graph in real time on the default audio
// device.
package oto

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/kineticfactory/plink"
)

const numChannels = 2

type (
	// PullFunc fills buffers with the next frames of audio. It is called from
	// the audio device goroutine.
	PullFunc func(buffers plink.BufferList)

	// Reader turns a PullFunc into the byte stream an oto player reads.
	Reader struct {
		pull      PullFunc
		pcm16     bool
		buf, view plink.BufferList
	}

	Context struct {
		ctx        *oto.Context
		sampleRate int
		pcm16      bool
	}

	Output struct {
		player *oto.Player
	}
)

// NewReader returns a Reader pulling at most framesPerBuffer frames at a
// time, as float32 samples or, if pcm16 is set, signed 16-bit samples.
func NewReader(pull PullFunc, framesPerBuffer int, pcm16 bool) *Reader {
	return &Reader{
		pull:  pull,
		pcm16: pcm16,
		buf:   plink.NewBufferList(numChannels, framesPerBuffer),
		view:  make(plink.BufferList, numChannels),
	}
}

func (r *Reader) bytesPerFrame() int {
	if r.pcm16 {
		return 2 * numChannels
	}
	return 4 * numChannels
}

// Read fills p with as many whole frames as fit, up to one buffer.
func (r *Reader) Read(p []byte) (int, error) {
	frames := min(len(p)/r.bytesPerFrame(), r.buf.Frames())
	if frames == 0 {
		return 0, nil
	}
	for c := range r.view {
		r.view[c] = r.buf[c][:frames]
	}
	r.pull(r.view)
	if r.pcm16 {
		return put16BitLE(p, r.view, frames), nil
	}
	return putFloat32LE(p, r.view, frames), nil
}

// NewContext opens the audio device. Only one Context can exist per process.
func NewContext(sampleRate int, bufferSize time.Duration, pcm16 bool) (*Context, error) {
	format := oto.FormatFloat32LE
	if pcm16 {
		format = oto.FormatSignedInt16LE
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: numChannels,
		Format:       format,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate, pcm16: pcm16}, nil
}

// Play starts playing the audio pulled by pull.
func (c *Context) Play(pull PullFunc, framesPerBuffer int) *Output {
	p := c.ctx.NewPlayer(NewReader(pull, framesPerBuffer, c.pcm16))
	p.Play()
	return &Output{player: p}
}

// Suspend pauses the audio device, e.g. while rendering offline.
func (c *Context) Suspend() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (c *Context) Resume() error {
	if err := c.ctx.Resume(); err != nil {
		return fmt.Errorf("cannot resume oto context: %w", err)
	}
	return nil
}

func (o *Output) Pause() {
	o.player.Pause()
}

func (o *Output) Resume() {
	o.player.Play()
}

// Close stops playing and disposes of the player.
func (o *Output) Close() error {
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
