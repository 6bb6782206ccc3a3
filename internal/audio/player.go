package audio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// FramesPerBuffer is the PortAudio buffer size used for playback.
const FramesPerBuffer = 512

// Init initializes PortAudio.
func Init() error {
	return portaudio.Initialize()
}

// Terminate cleans up PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// Player writes rendered waveforms to the default output device.
type Player struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	rate   float64
}

// NewPlayer opens a mono output stream at sampleRate. Init must have been
// called.
func NewPlayer(sampleRate float64) (*Player, error) {
	p := &Player{
		buf:  make([]float32, FramesPerBuffer),
		rate: sampleRate,
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, FramesPerBuffer, p.buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	p.stream = stream
	return p, nil
}

// SampleRate returns the stream rate.
func (p *Player) SampleRate() float64 { return p.rate }

// Play blocks until samples have been written or ctx is done. The last
// buffer is zero-padded.
func (p *Player) Play(ctx context.Context, samples []float32) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return fmt.Errorf("output stream closed")
	}

	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer func() {
		serr := p.stream.Stop()
		switch {
		case serr == nil:
		case err == nil:
			err = fmt.Errorf("stop output stream: %w", serr)
		default:
			log.Printf("Stop output stream: %v", serr)
		}
	}()

	for i := 0; i < len(samples); i += FramesPerBuffer {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(p.buf, samples[i:])
		clear(p.buf[n:])
		if err := p.stream.Write(); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

// Close closes the stream.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	err := p.stream.Close()
	p.stream = nil
	return err
}
