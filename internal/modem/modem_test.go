package modem

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomBits(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, 0))
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(rng.IntN(2))
	}
	return bits
}

func TestModulator_OneHot(t *testing.T) {
	mod, err := NewModulator(FSK8, DefaultAmplitude)
	require.NoError(t, err)

	tx, err := mod.ModulateBits([]byte{1, 0, 1}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, tx.NumSymbols())

	rows, cols := tx.Symbols.Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 8, cols)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 1}, mat.Row(nil, 0, tx.Symbols))
	assert.Equal(t, 8000.0, tx.Points[0].Frequency)
	assert.Equal(t, 0, tx.Padding)
}

func TestModulator_FIFOOrderAndAmplitude(t *testing.T) {
	mod, err := NewModulator(PSK8, 2.5)
	require.NoError(t, err)

	// raw values 0, 2, 7 -> gray8 indices 0, 3, 4
	tx, err := mod.ModulateBits([]byte{0, 0, 0, 0, 1, 0, 1, 1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 4}, tx.Indices)
	for k, idx := range tx.Indices {
		row := mat.Row(nil, k, tx.Symbols)
		for j, v := range row {
			if j == idx {
				assert.Equal(t, 2.5, v)
			} else {
				assert.Zero(t, v)
			}
		}
	}

	md := tx.Metadata()
	assert.Equal(t, PSK8, md.ModulationType)
	assert.Equal(t, 8, md.ConstellationSize)
	assert.Equal(t, 3, md.TotalSymbols)
	require.NotNil(t, md.BitsPerCharacter)
	assert.Equal(t, 3, *md.BitsPerCharacter)
}

func TestModulator_Errors(t *testing.T) {
	_, err := NewModulator(Scheme(7), 1)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = NewModulator(QAM16, 0)
	assert.ErrorIs(t, err, ErrInvalidChannelParameter)

	mod, err := NewModulator(QAM16, 1)
	require.NoError(t, err)

	_, err = mod.ModulateBits(nil, 0)
	assert.ErrorIs(t, err, ErrMalformedBitstream)

	_, err = mod.ModulateBits([]byte{0, 1, 5}, 0)
	assert.ErrorIs(t, err, ErrMalformedBitstream)

	_, err = mod.Modulate(&Frame{Bits: []byte{0, 1, 0}})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNoiselessRoundTrip(t *testing.T) {
	for _, s := range Schemes {
		t.Run(s.String(), func(t *testing.T) {
			mod, err := NewModulator(s, DefaultAmplitude)
			require.NoError(t, err)
			det, err := NewDetector(s, DefaultAmplitude)
			require.NoError(t, err)

			// 150 symbols worth of bits plus a ragged tail to force padding.
			bits := randomBits(150*s.BitsPerSymbol()+1, uint64(s))
			tx, err := mod.ModulateBits(bits, 0)
			require.NoError(t, err)
			assert.Equal(t, s.BitsPerSymbol()-1, tx.Padding)

			got, err := det.Detect(tx.Symbols, tx.Padding)
			require.NoError(t, err)
			assert.Equal(t, bits, got.Bits)
			assert.Equal(t, tx.Indices, got.Indices())
			for k, dec := range got.Decisions {
				assert.Equal(t, tx.Points[k], dec.Point)
				assert.Zero(t, dec.Distance)
			}
		})
	}
}

func TestQAM16_ConcreteScenario(t *testing.T) {
	mod, err := NewModulator(QAM16, DefaultAmplitude)
	require.NoError(t, err)
	det, err := NewDetector(QAM16, DefaultAmplitude)
	require.NoError(t, err)

	tx, err := mod.ModulateBits([]byte{0, 1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, tx.Indices[0])
	assert.Equal(t, Point{I: -3, Q: 3}, tx.Points[0])

	got, err := det.Detect(tx.Symbols, tx.Padding)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 0}, got.Bits)
}

func TestDetector_MinimumDistance(t *testing.T) {
	det, err := NewDetector(FSK8, DefaultAmplitude)
	require.NoError(t, err)

	// Strongest component wins once every other component is small.
	dec, err := det.DetectSymbol([]float64{0.1, -0.2, 0.3, 0.9, 0.05, 0, -0.4, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 3, dec.Index)

	dist, err := det.Distances([]float64{0, 0, 0, 1, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, dist[3])
	assert.Equal(t, 2.0, dist[0])
}

func TestDetector_TieBreakLowestIndex(t *testing.T) {
	det, err := NewDetector(PSK8, DefaultAmplitude)
	require.NoError(t, err)

	dec, err := det.DetectSymbol(make([]float64, 8))
	require.NoError(t, err)
	assert.Equal(t, 0, dec.Index)

	dec, err = det.DetectSymbol([]float64{0, 0, 0, 0, 0.5, 0.5, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 4, dec.Index)
}

func TestDetector_PaddingUnknown(t *testing.T) {
	mod, err := NewModulator(FSK8, DefaultAmplitude)
	require.NoError(t, err)
	det, err := NewDetector(FSK8, DefaultAmplitude)
	require.NoError(t, err)

	tx, err := mod.ModulateBits([]byte{1, 1, 1, 1}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, tx.Padding)

	got, err := det.Detect(tx.Symbols, PaddingUnknown)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1, 1, 0, 0}, got.Bits)
	assert.Equal(t, PaddingUnknown, got.Padding)
}

func TestDetector_Errors(t *testing.T) {
	_, err := NewDetector(Scheme(0), 1)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = NewDetector(FSK8, -1)
	assert.ErrorIs(t, err, ErrInvalidChannelParameter)

	det, err := NewDetector(QAM16, 1)
	require.NoError(t, err)

	_, err = det.Detect(mat.NewDense(2, 8, nil), 0)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = det.Detect(nil, 0)
	assert.ErrorIs(t, err, ErrMalformedBitstream)

	_, err = det.Detect(mat.NewDense(1, 16, nil), 4)
	assert.ErrorIs(t, err, ErrMalformedBitstream)

	_, err = det.DetectSymbol([]float64{1, 0})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
