package modem

import (
	"errors"
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabet_Bijection(t *testing.T) {
	for _, s := range Schemes {
		t.Run(s.String(), func(t *testing.T) {
			a, err := AlphabetFor(s)
			require.NoError(t, err)
			require.Equal(t, s.ConstellationSize(), a.Size())

			for idx := 0; idx < a.Size(); idx++ {
				pattern, err := a.IndexToBits(idx)
				require.NoError(t, err)
				require.Len(t, pattern, s.BitsPerSymbol())

				back, err := a.BitsToIndex(pattern)
				require.NoError(t, err)
				assert.Equal(t, idx, back, "index %d did not survive the round trip", idx)
			}

			// And the other way: every raw pattern reaches a distinct index.
			seen := make(map[int]bool)
			for raw := 0; raw < a.Size(); raw++ {
				pattern := indexToBits(raw, s.BitsPerSymbol())
				idx, err := a.BitsToIndex(pattern)
				require.NoError(t, err)
				assert.False(t, seen[idx], "index %d reached twice", idx)
				seen[idx] = true

				again, err := a.IndexToBits(idx)
				require.NoError(t, err)
				assert.Equal(t, pattern, again)
			}
		})
	}
}

func TestAlphabet_GrayAdjacency(t *testing.T) {
	for _, s := range []Scheme{FSK8, PSK8} {
		a, err := AlphabetFor(s)
		require.NoError(t, err)

		for raw := 0; raw+1 < a.Size(); raw++ {
			i0, err := a.BitsToIndex(indexToBits(raw, 3))
			require.NoError(t, err)
			i1, err := a.BitsToIndex(indexToBits(raw+1, 3))
			require.NoError(t, err)
			assert.Equal(t, 1, bits.OnesCount(uint(i0^i1)),
				"%v: raw %d -> %d and raw %d -> %d differ in more than one bit", s, raw, i0, raw+1, i1)
		}
	}
}

func TestFSK8_ConcreteScenario(t *testing.T) {
	a, err := AlphabetFor(FSK8)
	require.NoError(t, err)

	idx, err := a.BitsToIndex([]byte{1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 7, idx)

	p, err := a.IndexToPoint(idx)
	require.NoError(t, err)
	assert.Equal(t, 8000.0, p.Frequency)

	pattern, err := a.IndexToBits(7)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 1}, pattern)
}

func TestFSK8_Frequencies(t *testing.T) {
	a, err := AlphabetFor(FSK8)
	require.NoError(t, err)
	for idx := 0; idx < 8; idx++ {
		p, err := a.IndexToPoint(idx)
		require.NoError(t, err)
		assert.Equal(t, 1000.0+1000.0*float64(idx), p.Frequency)
	}
}

func TestQAM16_Table(t *testing.T) {
	a, err := AlphabetFor(QAM16)
	require.NoError(t, err)

	tests := []struct {
		bits  []byte
		index int
		i, q  float64
	}{
		{[]byte{0, 1, 0, 0}, 0, -3, 3},
		{[]byte{1, 1, 0, 0}, 3, 3, 3},
		{[]byte{1, 1, 1, 1}, 6, 1, 1},
		{[]byte{0, 0, 0, 1}, 8, -3, -1},
		{[]byte{0, 0, 0, 0}, 12, -3, -3},
		{[]byte{1, 0, 0, 0}, 15, 3, -3},
	}
	for _, tt := range tests {
		idx, err := a.BitsToIndex(tt.bits)
		require.NoError(t, err)
		assert.Equal(t, tt.index, idx, "bits %v", tt.bits)

		p, err := a.IndexToPoint(idx)
		require.NoError(t, err)
		assert.Equal(t, tt.i, p.I)
		assert.Equal(t, tt.q, p.Q)
	}

	// Every point sits on the {-3,-1,1,3} grid exactly once.
	grid := make(map[[2]float64]bool)
	for idx := 0; idx < a.Size(); idx++ {
		p, _ := a.IndexToPoint(idx)
		grid[[2]float64{p.I, p.Q}] = true
		assert.Contains(t, []float64{-3, -1, 1, 3}, p.I)
		assert.Contains(t, []float64{-3, -1, 1, 3}, p.Q)
	}
	assert.Len(t, grid, 16)
}

func TestPSK8_Points(t *testing.T) {
	a, err := AlphabetFor(PSK8)
	require.NoError(t, err)

	expected := []int{0, 1, 3, 2, 6, 7, 5, 4}
	for raw, want := range expected {
		idx, err := a.BitsToIndex(indexToBits(raw, 3))
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}

	for k := 0; k < 8; k++ {
		p, err := a.IndexToPoint(k)
		require.NoError(t, err)
		phase := 2 * math.Pi * float64(k) / 8
		assert.InDelta(t, math.Cos(phase), p.I, 1e-12)
		assert.InDelta(t, math.Sin(phase), p.Q, 1e-12)
		assert.InDelta(t, 1.0, math.Hypot(p.I, p.Q), 1e-12)
	}
}

func TestGrayConversion(t *testing.T) {
	for n := 0; n < 64; n++ {
		assert.Equal(t, n, GrayToBinary(BinaryToGray(n)))
	}
	assert.Equal(t, 7, BinaryToGray(5))
	assert.Equal(t, 5, GrayToBinary(7))
}

func TestAlphabet_Errors(t *testing.T) {
	_, err := AlphabetFor(Scheme(42))
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))

	_, err = NewAlphabet(0)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	a, err := AlphabetFor(FSK8)
	require.NoError(t, err)

	_, err = a.BitsToIndex([]byte{1, 0})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = a.BitsToIndex([]byte{1, 2, 0})
	assert.ErrorIs(t, err, ErrMalformedBitstream)

	_, err = a.IndexToBits(8)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = a.IndexToPoint(-1)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestBitsToIndex_IndexToBits(t *testing.T) {
	tests := []struct {
		idx     int
		numBits int
		bits    []byte
	}{
		{0, 3, []byte{0, 0, 0}},
		{5, 3, []byte{1, 0, 1}},
		{7, 3, []byte{1, 1, 1}},
		{4, 4, []byte{0, 1, 0, 0}},
		{15, 4, []byte{1, 1, 1, 1}},
	}

	for _, tt := range tests {
		got := indexToBits(tt.idx, tt.numBits)
		assert.Equal(t, tt.bits, got)
		assert.Equal(t, tt.idx, bitsToIndex(got))
	}
}

func TestParseScheme(t *testing.T) {
	tests := []struct {
		in   string
		want Scheme
	}{
		{"8FSK", FSK8},
		{"fsk8", FSK8},
		{"1", FSK8},
		{"16-QAM", QAM16},
		{"qam16", QAM16},
		{"2", QAM16},
		{" 8psk ", PSK8},
		{"3", PSK8},
	}
	for _, tt := range tests {
		got, err := ParseScheme(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseScheme("64QAM")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	assert.Equal(t, 3, FSK8.BitsPerSymbol())
	assert.Equal(t, 16, QAM16.ConstellationSize())
	assert.Equal(t, 0, Scheme(9).ConstellationSize())
}
