package sim

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/manumagallanes/STransmision/internal/channel"
	"github.com/manumagallanes/STransmision/internal/modem"
)

// SweepOptions configure a BER sweep.
type SweepOptions struct {
	Scheme    modem.Scheme
	Amplitude float64
	N0        []float64
	Symbols   int
	Seed      uint64
	Workers   int
}

// SweepPoint is the measured performance at one noise level.
type SweepPoint struct {
	Index        int     `json:"index"`
	N0           float64 `json:"n0"`
	EbN0dB       float64 `json:"eb_n0_db"`
	EsN0dB       float64 `json:"es_n0_db"`
	Bits         int     `json:"bits"`
	BitErrors    int     `json:"bit_errors"`
	BER          float64 `json:"ber"`
	Symbols      int     `json:"symbols"`
	SymbolErrors int     `json:"symbol_errors"`
	SER          float64 `json:"ser"`
}

// Sweep measures BER and SER at every N0 in opts. Points run in parallel;
// point i always uses noise stream i so the results do not depend on the
// worker count. progress, if not nil, is called once per finished point,
// never concurrently.
func Sweep(ctx context.Context, opts SweepOptions, progress func(SweepPoint)) ([]SweepPoint, error) {
	if !opts.Scheme.Valid() {
		return nil, fmt.Errorf("sweep: %w: %v", modem.ErrUnsupportedScheme, opts.Scheme)
	}
	if len(opts.N0) == 0 {
		return nil, fmt.Errorf("sweep: %w: no N0 points", modem.ErrInvalidChannelParameter)
	}
	if opts.Symbols < 1 {
		return nil, fmt.Errorf("sweep: %w: %d symbols", modem.ErrMalformedBitstream, opts.Symbols)
	}
	for i, n0 := range opts.N0 {
		if _, err := channel.ComputeParams(opts.Scheme, n0); err != nil {
			return nil, fmt.Errorf("sweep point %d: %w", i, err)
		}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	bits := RandomBits(opts.Symbols*opts.Scheme.BitsPerSymbol(), opts.Seed)
	points := make([]SweepPoint, len(opts.N0))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, n0 := range opts.N0 {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Run(ctx, bits, Options{
				Scheme:    opts.Scheme,
				Amplitude: opts.Amplitude,
				N0:        n0,
				Seed:      opts.Seed,
				Stream:    uint64(i),
			})
			if err != nil {
				return fmt.Errorf("sweep point %d: %w", i, err)
			}
			p := SweepPoint{
				Index:        i,
				N0:           n0,
				EbN0dB:       res.Params.EbN0dB,
				EsN0dB:       res.Params.EsN0dB,
				Bits:         res.Analysis.TotalBits,
				BitErrors:    res.Analysis.BitErrors,
				BER:          res.Analysis.BER,
				Symbols:      res.SymbolErrors.Symbols,
				SymbolErrors: res.SymbolErrors.Errors,
				SER:          res.SymbolErrors.Rate,
			}
			points[i] = p
			if progress != nil {
				mu.Lock()
				progress(p)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}
