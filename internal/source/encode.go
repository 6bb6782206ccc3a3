package source

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// MaxBits is the widest supported quantizer code.
const MaxBits = 16

// Quantize maps x onto levels uniformly spaced values spanning
// [-max|x|, max|x|]. It returns the quantized signal and the step size.
func Quantize(x []float64, levels int) ([]float64, float64, error) {
	if levels < 2 {
		return nil, 0, fmt.Errorf("quantize: need at least 2 levels, got %d", levels)
	}
	peak := peakAbs(x)
	out := make([]float64, len(x))
	if peak == 0 {
		return out, 0, nil
	}
	step := 2 * peak / float64(levels-1)
	for i, v := range x {
		out[i] = math.Round((v+peak)/step)*step - peak
	}
	return out, step, nil
}

// Encoding is a quantized signal written as fixed-width binary codes.
type Encoding struct {
	Codes            [][]byte
	BitsPerCharacter int
	Levels           int
	Step             float64
	Mu               float64
	Peak             float64 // peak magnitude of the input signal

	// Quantized holds the companded, quantized samples the codes index.
	Quantized []float64

	Zeros int
	Ones  int
}

// Encode compands samples with mu-law parameter mu, quantizes them to
// 2^bits levels and emits one code per sample, most significant bit first.
func Encode(samples []float64, mu float64, bits int) (*Encoding, error) {
	if bits < 1 || bits > MaxBits {
		return nil, fmt.Errorf("encode: %w: %d bits per sample outside [1, %d]", modem.ErrMalformedBitstream, bits, MaxBits)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("encode: %w: empty signal", modem.ErrMalformedBitstream)
	}
	if mu < 0 || math.IsNaN(mu) || math.IsInf(mu, 0) {
		return nil, fmt.Errorf("encode: invalid mu %v", mu)
	}

	xmax := peakAbs(samples)
	companded := MuLawCompress(samples, mu, xmax, xmax)
	levels := 1 << bits
	quantized, step, err := Quantize(companded, levels)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	enc := &Encoding{
		Codes:            make([][]byte, len(quantized)),
		BitsPerCharacter: bits,
		Levels:           levels,
		Step:             step,
		Mu:               mu,
		Peak:             xmax,
		Quantized:        quantized,
	}
	peak := peakAbs(quantized)
	for i, q := range quantized {
		level := 0
		if step > 0 {
			level = int(math.Round((q + peak) / step))
		}
		level = min(max(level, 0), levels-1)

		code := make([]byte, bits)
		for j := 0; j < bits; j++ {
			code[j] = byte(level>>(bits-1-j)) & 1
			if code[j] == 1 {
				enc.Ones++
			} else {
				enc.Zeros++
			}
		}
		enc.Codes[i] = code
	}
	return enc, nil
}

// Bits flattens the codes into one bitstream.
func (e *Encoding) Bits() []byte {
	out := make([]byte, 0, len(e.Codes)*e.BitsPerCharacter)
	for _, c := range e.Codes {
		out = append(out, c...)
	}
	return out
}

// Balance returns the observed probabilities of 0 and 1 in the bitstream.
func (e *Encoding) Balance() (p0, p1 float64) {
	total := e.Zeros + e.Ones
	if total == 0 {
		return 0, 0
	}
	return float64(e.Zeros) / float64(total), float64(e.Ones) / float64(total)
}

// Reconstruct expands the quantized samples back through the mu-law curve.
func (e *Encoding) Reconstruct() []float64 {
	return MuLawExpand(e.Quantized, e.Mu, e.Peak, e.Peak)
}

func peakAbs(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Max(floats.Max(x), -floats.Min(x))
}
