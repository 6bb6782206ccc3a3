// Package source turns recorded speech into the fixed-width binary codes
// the link transmits.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

// Signal is a mono sampled waveform.
type Signal struct {
	Samples    []float64
	SampleRate int
}

// ReadWAV decodes a WAV stream and keeps its first channel. Samples are
// scaled to [-1, 1].
func ReadWAV(r io.Reader) (*Signal, error) {
	w, err := wav.New(r)
	if err != nil {
		return nil, fmt.Errorf("decode wav header: %w", err)
	}
	channels := int(w.NumChannels)
	if channels < 1 {
		return nil, fmt.Errorf("decode wav: %d channels", channels)
	}

	interleaved, err := w.ReadFloats(w.Samples)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode wav samples: %w", err)
	}

	sig := &Signal{
		Samples:    make([]float64, 0, len(interleaved)/channels),
		SampleRate: int(w.SampleRate),
	}
	for i := 0; i < len(interleaved); i += channels {
		sig.Samples = append(sig.Samples, float64(interleaved[i]))
	}
	if len(sig.Samples) == 0 {
		return nil, errors.New("decode wav: no samples")
	}
	return sig, nil
}

// ReadWAVFile opens path and decodes it with ReadWAV.
func ReadWAVFile(path string) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()
	return ReadWAV(f)
}
