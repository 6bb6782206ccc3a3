package modem

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PaddingUnknown tells Detect that the frame padding is not known; the
// recovered bits are then returned untrimmed.
const PaddingUnknown = -1

// Decision is the detector's verdict for one received vector.
type Decision struct {
	Index    int     `json:"index"`
	Bits     []byte  `json:"bits"`
	Point    Point   `json:"point"`
	Distance float64 `json:"distance"` // squared distance to the chosen one-hot vector
}

// Detection is the detector output for a whole received sequence.
type Detection struct {
	Scheme    Scheme
	Decisions []Decision
	Bits      []byte // concatenated decisions with the padding removed
	Padding   int    // padding that was removed, PaddingUnknown if none was
}

// Indices returns the detected symbol indices in order.
func (d *Detection) Indices() []int {
	out := make([]int, len(d.Decisions))
	for i, dec := range d.Decisions {
		out[i] = dec.Index
	}
	return out
}

// Detector is the minimum-distance receiver for one-hot symbol vectors.
// Under i.i.d. Gaussian noise with equal-energy equiprobable symbols this is
// the maximum-likelihood decision rule.
type Detector struct {
	alphabet  *Alphabet
	amplitude float64
}

// NewDetector creates a detector for scheme s that compares against one-hot
// references of amplitude A.
func NewDetector(s Scheme, amplitude float64) (*Detector, error) {
	alphabet, err := AlphabetFor(s)
	if err != nil {
		return nil, err
	}
	if err := checkAmplitude(amplitude); err != nil {
		return nil, err
	}
	return &Detector{alphabet: alphabet, amplitude: amplitude}, nil
}

// Alphabet returns the alphabet the detector maps back with.
func (d *Detector) Alphabet() *Alphabet { return d.alphabet }

// Distances returns the squared Euclidean distance from r to every
// reference vector s_i (A at position i, 0 elsewhere).
func (d *Detector) Distances(r []float64) ([]float64, error) {
	size := d.alphabet.Size()
	if len(r) != size {
		return nil, fmt.Errorf("%w: received vector has %d components, %v expects %d", ErrLengthMismatch, len(r), d.alphabet.Scheme(), size)
	}
	dist := make([]float64, size)
	for i := range dist {
		var sum float64
		for j, rj := range r {
			diff := rj
			if j == i {
				diff -= d.amplitude
			}
			sum += diff * diff
		}
		dist[i] = sum
	}
	return dist, nil
}

// DetectSymbol decides on a single received vector. Ties go to the lowest
// index.
func (d *Detector) DetectSymbol(r []float64) (Decision, error) {
	dist, err := d.Distances(r)
	if err != nil {
		return Decision{}, err
	}
	idx := floats.MinIdx(dist)
	bits, err := d.alphabet.IndexToBits(idx)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Index:    idx,
		Bits:     bits,
		Point:    d.alphabet.points[idx],
		Distance: dist[idx],
	}, nil
}

// Detect decides on every row of received and reassembles the bitstream,
// dropping padding trailing bits. Pass PaddingUnknown to keep them.
func (d *Detector) Detect(received mat.Matrix, padding int) (*Detection, error) {
	if received == nil {
		return nil, fmt.Errorf("detect: %w: no received symbols", ErrMalformedBitstream)
	}
	rows, cols := received.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("detect: %w: no received symbols", ErrMalformedBitstream)
	}
	if cols != d.alphabet.Size() {
		return nil, fmt.Errorf("detect: %w: rows have %d components, %v expects %d", ErrLengthMismatch, cols, d.alphabet.Scheme(), d.alphabet.Size())
	}
	bps := d.alphabet.BitsPerSymbol()
	if padding != PaddingUnknown && (padding < 0 || padding >= bps) {
		return nil, fmt.Errorf("detect: %w: padding %d outside [0, %d)", ErrMalformedBitstream, padding, bps)
	}

	det := &Detection{
		Scheme:    d.alphabet.Scheme(),
		Decisions: make([]Decision, rows),
		Padding:   padding,
	}
	bits := make([]byte, 0, rows*bps)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, received)
		dec, err := d.DetectSymbol(row)
		if err != nil {
			return nil, fmt.Errorf("detect symbol %d: %w", i, err)
		}
		det.Decisions[i] = dec
		bits = append(bits, dec.Bits...)
	}
	det.Bits = TrimPadding(bits, padding)
	return det, nil
}
