// Package audio renders transmitted symbols as sound and plays them.
package audio

import (
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/mjibson/go-dsp/fft"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// MaxVerifiedSymbols bounds how many leading symbols VerifyTones inspects.
const MaxVerifiedSymbols = 16

// SynthConfig controls waveform rendering.
type SynthConfig struct {
	SampleRate     float64
	SymbolDuration time.Duration
	CarrierHz      float64 // QAM16 and PSK8 only
	Amplitude      float64 // peak of the rendered waveform
}

// SamplesPerSymbol returns how many samples one symbol lasts.
func (c SynthConfig) SamplesPerSymbol() int {
	return int(math.Round(c.SampleRate * c.SymbolDuration.Seconds()))
}

// Synthesize renders points as a waveform. FSK8 symbols become
// phase-continuous tones at their frequency; QAM16 and PSK8 symbols
// modulate a carrier as I·cos(2πfct) − Q·sin(2πfct). The result is scaled
// so its peak equals cfg.Amplitude.
func Synthesize(points []modem.Point, s modem.Scheme, cfg SynthConfig) ([]float64, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("synthesize: %w: %v", modem.ErrUnsupportedScheme, s)
	}
	n := cfg.SamplesPerSymbol()
	if n < 1 {
		return nil, fmt.Errorf("synthesize: symbol of %v at %v Hz has no samples", cfg.SymbolDuration, cfg.SampleRate)
	}
	if s != modem.FSK8 && (cfg.CarrierHz <= 0 || cfg.CarrierHz >= cfg.SampleRate/2) {
		return nil, fmt.Errorf("synthesize: carrier %v Hz outside (0, %v)", cfg.CarrierHz, cfg.SampleRate/2)
	}

	out := make([]float64, len(points)*n)
	dt := 1 / cfg.SampleRate
	phase := 0.0
	for k, p := range points {
		seg := out[k*n : (k+1)*n]
		for i := range seg {
			t := float64(k*n+i) * dt
			if s == modem.FSK8 {
				seg[i] = math.Sin(phase)
				phase += 2 * math.Pi * p.Frequency * dt
			} else {
				w := 2 * math.Pi * cfg.CarrierHz * t
				seg[i] = p.I*math.Cos(w) - p.Q*math.Sin(w)
			}
		}
		phase = math.Mod(phase, 2*math.Pi)
	}
	normalize(out, cfg.Amplitude)
	return out, nil
}

func normalize(samples []float64, peak float64) {
	maxAbs := 0.0
	for _, v := range samples {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	if maxAbs == 0 {
		return
	}
	scale := peak / maxAbs
	for i := range samples {
		samples[i] *= scale
	}
}

// ToFloat32 converts samples for PortAudio.
func ToFloat32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v)
	}
	return out
}

// DominantFrequency returns the frequency of the strongest FFT bin of
// samples, excluding DC.
func DominantFrequency(samples []float64, sampleRate float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	spectrum := fft.FFTReal(samples)
	best, bestMag := 0, 0.0
	for k := 1; k <= len(samples)/2; k++ {
		if m := cmplx.Abs(spectrum[k]); m > bestMag {
			best, bestMag = k, m
		}
	}
	return float64(best) * sampleRate / float64(len(samples))
}

// VerifyTones checks that the first symbols of a rendered waveform carry
// the expected frequency: the symbol tone for FSK8, the carrier otherwise.
// A symbol passes when its strongest bin is within one bin of the target.
func VerifyTones(wave []float64, points []modem.Point, s modem.Scheme, cfg SynthConfig) error {
	n := cfg.SamplesPerSymbol()
	if n < 2 || len(wave) < len(points)*n {
		return fmt.Errorf("verify tones: %d samples for %d symbols of %d", len(wave), len(points), n)
	}
	binHz := cfg.SampleRate / float64(n)
	for k, p := range points[:min(len(points), MaxVerifiedSymbols)] {
		want := cfg.CarrierHz
		if s == modem.FSK8 {
			want = p.Frequency
		}
		got := DominantFrequency(wave[k*n:(k+1)*n], cfg.SampleRate)
		if math.Abs(got-want) > binHz {
			return fmt.Errorf("verify tones: symbol %d peaks at %.1f Hz, want %.1f Hz", k, got, want)
		}
	}
	return nil
}
