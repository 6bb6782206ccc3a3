// Package channel models the additive white Gaussian noise link between the
// modulator and the detector.
package channel

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// Params are the SNR figures of one channel run. They are diagnostic only and
// never feed back into noise generation.
type Params struct {
	N0     float64 `json:"-"`
	Eb     float64 `json:"Eb"`
	Es     float64 `json:"Es"`
	EbN0dB float64 `json:"Eb_N0_dB"`
	EsN0dB float64 `json:"Es_N0_dB"`
}

// ComputeParams derives the energy bookkeeping for scheme s at noise density
// n0. Symbols carry unit energy, so Es is 1 and Eb = 1/bitsPerSymbol.
func ComputeParams(s modem.Scheme, n0 float64) (Params, error) {
	if !s.Valid() {
		return Params{}, fmt.Errorf("%w: %v", modem.ErrUnsupportedScheme, s)
	}
	if err := checkN0(n0); err != nil {
		return Params{}, err
	}
	bps := float64(s.BitsPerSymbol())
	eb := 1 / bps
	es := eb * bps
	return Params{
		N0:     n0,
		Eb:     eb,
		Es:     es,
		EbN0dB: 10 * math.Log10(eb/n0),
		EsN0dB: 10 * math.Log10(es/n0),
	}, nil
}

// N0ForEbN0 returns the noise density that yields the given Eb/N0 in dB.
func N0ForEbN0(s modem.Scheme, ebN0dB float64) (float64, error) {
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %v", modem.ErrUnsupportedScheme, s)
	}
	eb := 1 / float64(s.BitsPerSymbol())
	return eb / math.Pow(10, ebN0dB/10), nil
}

func checkN0(n0 float64) error {
	if math.IsNaN(n0) || math.IsInf(n0, 0) || n0 <= 0 {
		return fmt.Errorf("%w: N0 must be positive, got %v", modem.ErrInvalidChannelParameter, n0)
	}
	return nil
}

// Channel adds zero-mean Gaussian noise of variance N0/2 to every component
// it is given. A Channel owns its generator and is not safe for concurrent
// use; give each goroutine its own Channel.
type Channel struct {
	n0    float64
	noise distuv.Normal
}

// New creates a channel drawing from src.
func New(n0 float64, src rand.Source) (*Channel, error) {
	if err := checkN0(n0); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil noise source", modem.ErrInvalidChannelParameter)
	}
	return &Channel{
		n0: n0,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: math.Sqrt(n0 / 2),
			Src:   src,
		},
	}, nil
}

// NewSeeded creates a channel with its own PCG stream. Equal (seed, stream)
// pairs reproduce the same noise.
func NewSeeded(n0 float64, seed, stream uint64) (*Channel, error) {
	return New(n0, rand.NewPCG(seed, stream))
}

// N0 returns the noise power spectral density.
func (c *Channel) N0() float64 { return c.n0 }

// Sigma returns the per-component noise standard deviation.
func (c *Channel) Sigma() float64 { return c.noise.Sigma }

// AddNoise returns m plus independent noise on every element, along with the
// noise itself. m is not modified.
func (c *Channel) AddNoise(m mat.Matrix) (noisy, noise *mat.Dense, err error) {
	if m == nil {
		return nil, nil, fmt.Errorf("%w: nothing to transmit", modem.ErrMalformedBitstream)
	}
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, nil, fmt.Errorf("%w: nothing to transmit", modem.ErrMalformedBitstream)
	}

	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = c.noise.Rand()
	}
	noise = mat.NewDense(rows, cols, data)
	noisy = mat.NewDense(rows, cols, nil)
	noisy.Add(m, noise)
	return noisy, noise, nil
}

// Reception is what the detector sees after the channel.
type Reception struct {
	Scheme   modem.Scheme
	Received *mat.Dense
	Noise    *mat.Dense
	Params   Params

	Padding          int
	BitsPerCharacter int
}

// NumSymbols returns the number of received vectors.
func (r *Reception) NumSymbols() int {
	rows, _ := r.Received.Dims()
	return rows
}

// NoiseVariance returns the sample variance of the injected noise. It should
// approach N0/2.
func (r *Reception) NoiseVariance() float64 {
	return stat.Variance(r.Noise.RawMatrix().Data, nil)
}

// Transmit passes a transmission through the channel.
func (c *Channel) Transmit(tx *modem.Transmission) (*Reception, error) {
	if tx == nil || tx.Symbols == nil {
		return nil, fmt.Errorf("transmit: %w: no symbols", modem.ErrMalformedBitstream)
	}
	params, err := ComputeParams(tx.Scheme, c.n0)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	if _, cols := tx.Symbols.Dims(); cols != tx.Scheme.ConstellationSize() {
		return nil, fmt.Errorf("transmit: %w: rows have %d components, %v expects %d",
			modem.ErrLengthMismatch, cols, tx.Scheme, tx.Scheme.ConstellationSize())
	}
	noisy, noise, err := c.AddNoise(tx.Symbols)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	return &Reception{
		Scheme:           tx.Scheme,
		Received:         noisy,
		Noise:            noise,
		Params:           params,
		Padding:          tx.Padding,
		BitsPerCharacter: tx.BitsPerCharacter,
	}, nil
}
