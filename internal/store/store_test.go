package store

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/manumagallanes/STransmision/internal/analysis"
	"github.com/manumagallanes/STransmision/internal/channel"
	"github.com/manumagallanes/STransmision/internal/modem"
	"github.com/manumagallanes/STransmision/internal/source"
)

func TestReadBits_CodeFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCodes(&buf, [][]byte{{1, 0, 1}, {0, 1, 1}}, 3))
	assert.Equal(t, "101\n011\nBits per character: 3\n", buf.String())

	bf, err := ReadBits(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, bf.BitsPerCharacter)
	assert.Equal(t, []byte{1, 0, 1, 0, 1, 1}, bf.Bits)
}

func TestReadBits_LegacyTrailer(t *testing.T) {
	bf, err := ReadBits(strings.NewReader("0110\n1001\nBits por carácter: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, bf.BitsPerCharacter)
	assert.Len(t, bf.Bits, 8)
}

func TestReadBits_OneBitPerLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBits(&buf, []byte{1, 0, 0, 1}))

	bf, err := ReadBits(&buf)
	require.NoError(t, err)
	assert.Zero(t, bf.BitsPerCharacter)
	assert.Equal(t, []byte{1, 0, 0, 1}, bf.Bits)
}

func TestReadBits_Malformed(t *testing.T) {
	_, err := ReadBits(strings.NewReader("0102\n"))
	assert.ErrorIs(t, err, modem.ErrMalformedBitstream)

	_, err = ReadBits(strings.NewReader("01\n011\nBits per character: 3\n"))
	assert.ErrorIs(t, err, modem.ErrMalformedBitstream)
}

func TestMatrix_RoundTrip(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{0.125, -1e-9, 3, 1.0 / 3, 0, -2.5})

	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, m, FormatFloat))
	got, err := ReadMatrix(&buf)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, got))

	buf.Reset()
	oneHot := mat.NewDense(2, 4, []float64{0, 1, 0, 0, 0, 0, 0, 1})
	require.NoError(t, WriteMatrix(&buf, oneHot, FormatInteger))
	assert.Equal(t, "0 1 0 0\n0 0 0 1\n", buf.String())
}

func TestReadMatrix_Errors(t *testing.T) {
	_, err := ReadMatrix(strings.NewReader("1 2\n3\n"))
	assert.ErrorIs(t, err, modem.ErrLengthMismatch)
	_, err = ReadMatrix(strings.NewReader("1 x\n"))
	assert.ErrorIs(t, err, modem.ErrMalformedBitstream)
	_, err = ReadMatrix(strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, modem.ErrMalformedBitstream)
}

func TestMatrixFile_Zstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.txt"+ZstdSuffix)
	m := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

	require.NoError(t, WriteMatrixFile(path, m, FormatFloat))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 4)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4], "zstd frame magic")

	got, err := ReadMatrixFile(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, got))
}

func TestDir_Pipeline(t *testing.T) {
	for _, compress := range []bool{false, true} {
		d, err := Open(filepath.Join(t.TempDir(), "run"), compress)
		require.NoError(t, err)

		enc, err := source.Encode([]float64{-1, -0.5, 0, 0.5, 1}, 255, 4)
		require.NoError(t, err)
		require.NoError(t, d.SaveEncoding(enc))

		bf, err := d.LoadBits(EncodedSignalFile)
		require.NoError(t, err)
		assert.Equal(t, enc.Bits(), bf.Bits)
		assert.Equal(t, 4, bf.BitsPerCharacter)

		mod, err := modem.NewModulator(modem.PSK8, modem.DefaultAmplitude)
		require.NoError(t, err)
		tx, err := mod.ModulateBits(bf.Bits, bf.BitsPerCharacter)
		require.NoError(t, err)
		require.NoError(t, d.SaveTransmission(tx))
		assert.FileExists(t, d.File(ModulationTableFile(modem.PSK8)))

		symbols, md, err := d.LoadTransmission()
		require.NoError(t, err)
		assert.True(t, mat.Equal(tx.Symbols, symbols))
		assert.Equal(t, tx.Metadata(), md)

		ch, err := channel.NewSeeded(0.01, 1, 2)
		require.NoError(t, err)
		rx, err := ch.Transmit(tx)
		require.NoError(t, err)
		require.NoError(t, d.SaveReception(rx, NewChannelInfo(rx, md, 1, 2)))

		received, info, err := d.LoadReception()
		require.NoError(t, err)
		assert.True(t, mat.EqualApprox(rx.Received, received, 1e-15))
		assert.Equal(t, modem.PSK8, info.ModulationType)
		assert.Equal(t, 0.01, info.N0)
		assert.InDelta(t, rx.Params.EbN0dB, info.SNRMetrics.EbN0dB, 1e-12)

		det, err := modem.NewDetector(info.ModulationType, modem.DefaultAmplitude)
		require.NoError(t, err)
		detection, err := det.Detect(received, info.Padding)
		require.NoError(t, err)
		dinfo := DemodulationInfo{
			ModulationType:        detection.Scheme,
			ConstellationSize:     info.ConstellationSize,
			TotalSymbolsProcessed: len(detection.Decisions),
			PaddingRemoved:        info.Padding,
			BitsPerCharacter:      info.BitsPerCharacter,
			SNRInfo:               &info.SNRMetrics,
		}
		require.NoError(t, d.SaveDetection(detection, dinfo))

		recovered, err := d.LoadBits(DemodulatedBitsFile)
		require.NoError(t, err)
		assert.Equal(t, detection.Bits, recovered.Bits)

		loaded, err := d.LoadDemodulationInfo()
		require.NoError(t, err)
		require.NotNil(t, loaded.BitsPerCharacter)
		assert.Equal(t, 4, *loaded.BitsPerCharacter)

		res, err := analysis.Compare(bf.Bits, recovered.Bits, analysis.Options{BitsPerCharacter: 4, Scheme: modem.PSK8})
		require.NoError(t, err)
		require.NoError(t, d.SaveReport(res, &loaded))
		report, err := os.ReadFile(d.File(ComparisonReportFile))
		require.NoError(t, err)
		assert.Contains(t, string(report), "Modulation:     8PSK")
		assert.Contains(t, string(report), "TRANSMISSION COMPARISON REPORT")
	}
}

func saveBits(t *testing.T, d *Dir, s modem.Scheme, bits []byte) *modem.Transmission {
	t.Helper()
	mod, err := modem.NewModulator(s, modem.DefaultAmplitude)
	require.NoError(t, err)
	tx, err := mod.ModulateBits(bits, 0)
	require.NoError(t, err)
	require.NoError(t, d.SaveTransmission(tx))
	return tx
}

func argmaxRows(m mat.Matrix) []int {
	rows, cols := m.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < cols; j++ {
			if m.At(i, j) > m.At(i, best) {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

func TestDir_SwitchingCompressionReplacesArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run")

	plain, err := Open(path, false)
	require.NoError(t, err)
	saveBits(t, plain, modem.FSK8, []byte{0, 0, 1, 0, 1, 0, 1, 1, 1})

	compressed, err := Open(path, true)
	require.NoError(t, err)
	tx := saveBits(t, compressed, modem.PSK8, []byte{1, 1, 1, 0, 0, 0, 1, 0, 1})
	assert.NoFileExists(t, plain.File(ModulatedSignalFile))
	assert.FileExists(t, plain.File(ModulatedSignalFile+ZstdSuffix))

	symbols, md, err := plain.LoadTransmission()
	require.NoError(t, err)
	assert.Equal(t, modem.PSK8, md.ModulationType)
	assert.Equal(t, tx.Indices, argmaxRows(symbols))

	ch, err := channel.NewSeeded(0.01, 1, 0)
	require.NoError(t, err)
	rx, err := ch.Transmit(tx)
	require.NoError(t, err)
	require.NoError(t, compressed.SaveReception(rx, NewChannelInfo(rx, md, 1, 0)))

	// And back to plain: the compressed channel output must go.
	require.NoError(t, plain.SaveReception(rx, NewChannelInfo(rx, md, 1, 0)))
	assert.NoFileExists(t, plain.File(ChannelOutputFile+ZstdSuffix))
	assert.NoFileExists(t, plain.File(ChannelNoiseFile+ZstdSuffix))
	received, _, err := compressed.LoadReception()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(rx.Received, received, 1e-15))
}

func TestDir_AmbiguousMatrix(t *testing.T) {
	d, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	saveBits(t, d, modem.FSK8, []byte{1, 0, 1})

	// A copy in the other format written behind the store's back.
	m := mat.NewDense(1, 8, nil)
	require.NoError(t, WriteMatrixFile(d.File(ModulatedSignalFile+ZstdSuffix), m, FormatInteger))

	_, _, err = d.LoadTransmission()
	assert.ErrorIs(t, err, ErrAmbiguousArtifact)
}

func TestDir_NewTransmissionDropsChannelArtifacts(t *testing.T) {
	d, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	tx := saveBits(t, d, modem.QAM16, []byte{0, 1, 0, 0, 1, 1, 1, 1})

	ch, err := channel.NewSeeded(0.1, 3, 0)
	require.NoError(t, err)
	rx, err := ch.Transmit(tx)
	require.NoError(t, err)
	require.NoError(t, d.SaveReception(rx, NewChannelInfo(rx, tx.Metadata(), 3, 0)))
	assert.FileExists(t, d.File(ChannelInfoFile))

	saveBits(t, d, modem.QAM16, []byte{1, 1, 0, 0})
	assert.NoFileExists(t, d.File(ChannelOutputFile))
	assert.NoFileExists(t, d.File(ChannelNoiseFile))
	assert.NoFileExists(t, d.File(ChannelInfoFile))

	_, _, err = d.LoadReception()
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDir_ReceptionSizeMismatch(t *testing.T) {
	d, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	tx := saveBits(t, d, modem.FSK8, []byte{1, 0, 1, 0, 1, 1})

	ch, err := channel.NewSeeded(0.1, 1, 0)
	require.NoError(t, err)
	rx, err := ch.Transmit(tx)
	require.NoError(t, err)
	info := NewChannelInfo(rx, tx.Metadata(), 1, 0)
	info.TotalSymbols = 5
	require.NoError(t, d.SaveReception(rx, info))

	_, _, err = d.LoadReception()
	assert.ErrorIs(t, err, modem.ErrLengthMismatch)
}

func TestWriteDetectionTable(t *testing.T) {
	mod, err := modem.NewModulator(modem.FSK8, modem.DefaultAmplitude)
	require.NoError(t, err)
	det, err := modem.NewDetector(modem.FSK8, modem.DefaultAmplitude)
	require.NoError(t, err)

	tx, err := mod.ModulateBits([]byte{1, 0, 1}, 0)
	require.NoError(t, err)
	d, err := det.Detect(tx.Symbols, tx.Padding)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDetectionTable(&buf, d))
	assert.Equal(t, "gray_symbol\tbinary\tfrequency_hz\n7\t5\t8000\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteModulationTable(&buf, tx))
	assert.Equal(t, "8000\n", buf.String())
}
