package modem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultAmplitude is the one-hot amplitude A used when none is configured.
const DefaultAmplitude = 1.0

// Transmission is the modulator output: one one-hot energy vector per
// symbol plus the scheme-specific view of the same symbols.
type Transmission struct {
	Scheme    Scheme
	Amplitude float64

	// Symbols is numSymbols × constellationSize; row k holds Amplitude at
	// column Indices[k] and zero elsewhere.
	Symbols *mat.Dense
	Indices []int
	Points  []Point

	Padding          int
	BitsPerCharacter int
}

// NumSymbols returns the number of transmitted symbols.
func (t *Transmission) NumSymbols() int {
	return len(t.Indices)
}

// Metadata describes a transmission for the downstream stages.
type Metadata struct {
	ModulationType    Scheme `json:"modulation_type"`
	ConstellationSize int    `json:"constellation_size"`
	Padding           int    `json:"padding"`
	BitsPerCharacter  *int   `json:"bits_per_character"`
	TotalSymbols      int    `json:"total_symbols"`
}

// Metadata returns the hand-off metadata of the transmission.
func (t *Transmission) Metadata() Metadata {
	md := Metadata{
		ModulationType:    t.Scheme,
		ConstellationSize: t.Scheme.ConstellationSize(),
		Padding:           t.Padding,
		TotalSymbols:      t.NumSymbols(),
	}
	if t.BitsPerCharacter > 0 {
		bpc := t.BitsPerCharacter
		md.BitsPerCharacter = &bpc
	}
	return md
}

// Modulator maps framed bits onto one-hot symbol vectors.
type Modulator struct {
	alphabet  *Alphabet
	amplitude float64
}

// NewModulator creates a modulator for scheme s with one-hot amplitude A.
func NewModulator(s Scheme, amplitude float64) (*Modulator, error) {
	alphabet, err := AlphabetFor(s)
	if err != nil {
		return nil, err
	}
	if err := checkAmplitude(amplitude); err != nil {
		return nil, err
	}
	return &Modulator{alphabet: alphabet, amplitude: amplitude}, nil
}

// Alphabet returns the alphabet the modulator maps with.
func (m *Modulator) Alphabet() *Alphabet { return m.alphabet }

// Modulate converts a padded frame into its symbol sequence, keeping the
// bit order of the frame.
func (m *Modulator) Modulate(f *Frame) (*Transmission, error) {
	bps := m.alphabet.BitsPerSymbol()
	if f == nil || len(f.Bits) == 0 {
		return nil, fmt.Errorf("modulate: %w: no symbols to transmit", ErrMalformedBitstream)
	}
	if len(f.Bits)%bps != 0 {
		return nil, fmt.Errorf("modulate: %w: %d bits is not a multiple of %d", ErrLengthMismatch, len(f.Bits), bps)
	}
	if f.Padding < 0 || f.Padding >= bps {
		return nil, fmt.Errorf("modulate: %w: padding %d outside [0, %d)", ErrMalformedBitstream, f.Padding, bps)
	}

	numSymbols := len(f.Bits) / bps
	size := m.alphabet.Size()
	tx := &Transmission{
		Scheme:           m.alphabet.Scheme(),
		Amplitude:        m.amplitude,
		Symbols:          mat.NewDense(numSymbols, size, nil),
		Indices:          make([]int, numSymbols),
		Points:           make([]Point, numSymbols),
		Padding:          f.Padding,
		BitsPerCharacter: f.BitsPerCharacter,
	}

	for i := 0; i < numSymbols; i++ {
		idx, err := m.alphabet.BitsToIndex(f.Bits[i*bps : (i+1)*bps])
		if err != nil {
			return nil, fmt.Errorf("modulate symbol %d: %w", i, err)
		}
		tx.Indices[i] = idx
		tx.Points[i] = m.alphabet.points[idx]
		tx.Symbols.Set(i, idx, m.amplitude)
	}
	return tx, nil
}

// ModulateBits frames raw bits and modulates them.
func (m *Modulator) ModulateBits(bits []byte, bitsPerCharacter int) (*Transmission, error) {
	f, err := NewFrame(bits, m.alphabet.Scheme(), bitsPerCharacter)
	if err != nil {
		return nil, err
	}
	return m.Modulate(f)
}

func checkAmplitude(a float64) error {
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 {
		return fmt.Errorf("%w: amplitude %v", ErrInvalidChannelParameter, a)
	}
	return nil
}
