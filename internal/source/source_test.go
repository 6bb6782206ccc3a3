package source

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manumagallanes/STransmision/internal/modem"
)

func TestMuLaw_RoundTrip(t *testing.T) {
	x := []float64{-1, -0.5, -0.01, 0, 0.01, 0.25, 1}
	for _, mu := range []float64{0, 1, 100, 255} {
		y := MuLawCompress(x, mu, 1, 1)
		back := MuLawExpand(y, mu, 1, 1)
		for i := range x {
			assert.InDelta(t, x[i], back[i], 1e-12, "mu=%v x=%v", mu, x[i])
			assert.LessOrEqual(t, math.Abs(y[i]), 1.0+1e-12)
		}
	}

	// Companding boosts small magnitudes.
	y := MuLawCompress([]float64{0.01}, 255, 1, 1)
	assert.Greater(t, y[0], 0.01)
}

func TestQuantize(t *testing.T) {
	q, step, err := Quantize([]float64{-2, -0.9, 0.1, 2}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, step, 1e-12)
	assert.InDeltaSlice(t, []float64{-2, -1, 0, 2}, q, 1e-12)

	q, step, err = Quantize([]float64{0, 0}, 4)
	require.NoError(t, err)
	assert.Zero(t, step)
	assert.Equal(t, []float64{0, 0}, q)

	_, _, err = Quantize([]float64{1}, 1)
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	enc, err := Encode([]float64{-1, 0, 1}, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, enc.BitsPerCharacter)
	assert.Equal(t, 4, enc.Levels)
	assert.Equal(t, [][]byte{{0, 0}, {1, 0}, {1, 1}}, enc.Codes)
	assert.Equal(t, []byte{0, 0, 1, 0, 1, 1}, enc.Bits())
	assert.Equal(t, 3, enc.Zeros)
	assert.Equal(t, 3, enc.Ones)

	p0, p1 := enc.Balance()
	assert.InDelta(t, 0.5, p0, 1e-12)
	assert.InDelta(t, 0.5, p1, 1e-12)

	rec := enc.Reconstruct()
	assert.InDelta(t, -1, rec[0], 1e-12)
	assert.InDelta(t, 1, rec[2], 1e-12)
}

func TestEncode_CodesStayInRange(t *testing.T) {
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * float64(i) / 37)
	}
	enc, err := Encode(samples, 255, 8)
	require.NoError(t, err)
	require.Len(t, enc.Codes, len(samples))
	for _, c := range enc.Codes {
		require.Len(t, c, 8)
		require.NoError(t, modem.ValidateBits(c))
	}
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(nil, 0, 8)
	assert.ErrorIs(t, err, modem.ErrMalformedBitstream)
	_, err = Encode([]float64{1}, 0, 0)
	assert.ErrorIs(t, err, modem.ErrMalformedBitstream)
	_, err = Encode([]float64{1}, 0, MaxBits+1)
	assert.ErrorIs(t, err, modem.ErrMalformedBitstream)
	_, err = Encode([]float64{1}, -5, 8)
	assert.Error(t, err)
}

// pcm16WAV builds a canonical 16-bit PCM WAV file.
func pcm16WAV(rate, channels int, samples []int16) []byte {
	var buf bytes.Buffer
	dataSize := uint32(len(samples) * 2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

func TestReadWAV_FirstChannel(t *testing.T) {
	// Left channel ramps, right channel is silent.
	data := pcm16WAV(8000, 2, []int16{0, 0, 16384, 0, -16384, 0, 32767, 0})

	sig, err := ReadWAV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8000, sig.SampleRate)
	require.Len(t, sig.Samples, 4)
	assert.InDelta(t, 0.0, sig.Samples[0], 1e-3)
	assert.InDelta(t, 0.5, sig.Samples[1], 1e-3)
	assert.InDelta(t, -0.5, sig.Samples[2], 1e-3)
	assert.InDelta(t, 1.0, sig.Samples[3], 1e-3)
}

func TestReadWAV_Garbage(t *testing.T) {
	_, err := ReadWAV(bytes.NewReader([]byte("not a wav file at all")))
	assert.Error(t, err)
}
