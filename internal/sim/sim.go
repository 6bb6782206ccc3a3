// Package sim wires the modulator, channel, detector and analyzer into one
// end-to-end run.
package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/manumagallanes/STransmision/internal/analysis"
	"github.com/manumagallanes/STransmision/internal/channel"
	"github.com/manumagallanes/STransmision/internal/modem"
)

// Options configure a single run.
type Options struct {
	Scheme    modem.Scheme
	Amplitude float64

	// N0 is the channel noise density. Zero skips the channel.
	N0     float64
	Seed   uint64
	Stream uint64

	BitsPerCharacter int
	Strict           bool
}

// Result is everything a run produced.
type Result struct {
	ID           string               `json:"id"`
	Scheme       modem.Scheme         `json:"scheme"`
	N0           float64              `json:"n0"`
	Params       *channel.Params      `json:"snr_metrics,omitempty"`
	Metadata     modem.Metadata       `json:"metadata"`
	Analysis     *analysis.Result     `json:"analysis"`
	SymbolErrors analysis.SymbolStats `json:"symbol_errors"`
	Elapsed      time.Duration        `json:"elapsed_ns"`
	Started      time.Time            `json:"started"`
	Transmission *modem.Transmission  `json:"-"`
	Reception    *channel.Reception   `json:"-"`
	Detection    *modem.Detection     `json:"-"`
}

// Run sends bits across the link and analyses what comes out.
func Run(ctx context.Context, bits []byte, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Amplitude == 0 {
		opts.Amplitude = modem.DefaultAmplitude
	}

	mod, err := modem.NewModulator(opts.Scheme, opts.Amplitude)
	if err != nil {
		return nil, err
	}
	det, err := modem.NewDetector(opts.Scheme, opts.Amplitude)
	if err != nil {
		return nil, err
	}

	tx, err := mod.ModulateBits(bits, opts.BitsPerCharacter)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		ID:           uuid.NewString(),
		Scheme:       opts.Scheme,
		N0:           opts.N0,
		Metadata:     tx.Metadata(),
		Started:      start,
		Transmission: tx,
	}

	received := tx.Symbols
	if opts.N0 != 0 {
		ch, err := channel.NewSeeded(opts.N0, opts.Seed, opts.Stream)
		if err != nil {
			return nil, err
		}
		rx, err := ch.Transmit(tx)
		if err != nil {
			return nil, err
		}
		res.Reception = rx
		res.Params = &rx.Params
		received = rx.Received
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detection, err := det.Detect(received, tx.Padding)
	if err != nil {
		return nil, err
	}
	res.Detection = detection

	res.Analysis, err = analysis.Compare(bits, detection.Bits, analysis.Options{
		BitsPerCharacter: opts.BitsPerCharacter,
		Scheme:           opts.Scheme,
		Strict:           opts.Strict,
	})
	if err != nil {
		return nil, err
	}
	res.SymbolErrors, err = analysis.SymbolErrors(tx.Indices, detection.Indices())
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// RandomBits returns n equiprobable bits from a PCG stream seeded by seed.
func RandomBits(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	bits := make([]byte, n)
	for i := 0; i < n; i += 64 {
		word := rng.Uint64()
		for j := 0; j < 64 && i+j < n; j++ {
			bits[i+j] = byte(word>>(63-j)) & 1
		}
	}
	return bits
}

// Summary is the compact form of a run for logs and publishers.
func (r *Result) Summary() string {
	s := fmt.Sprintf("%v: %d symbols, %d/%d bit errors (BER %.3e), SER %.3e",
		r.Scheme, r.Metadata.TotalSymbols, r.Analysis.BitErrors, r.Analysis.TotalBits,
		r.Analysis.BER, r.SymbolErrors.Rate)
	if r.Params != nil {
		s += fmt.Sprintf(", Eb/N0 %.2f dB", r.Params.EbN0dB)
	}
	return s
}
