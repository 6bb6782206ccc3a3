package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// ZstdSuffix marks a compressed artifact.
const ZstdSuffix = ".zst"

// MatrixFormat selects how matrix elements are printed.
type MatrixFormat int

const (
	// FormatFloat prints full-precision scientific notation.
	FormatFloat MatrixFormat = iota
	// FormatInteger prints elements rounded to integers, for one-hot input.
	FormatInteger
)

// WriteMatrix writes m as whitespace-separated rows.
func WriteMatrix(w io.Writer, m mat.Matrix, format MatrixFormat) error {
	rows, cols := m.Dims()
	bw := bufio.NewWriter(w)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				bw.WriteByte(' ')
			}
			v := m.At(i, j)
			if format == FormatInteger {
				bw.WriteString(strconv.FormatFloat(v, 'f', 0, 64))
			} else {
				bw.WriteString(strconv.FormatFloat(v, 'e', 18, 64))
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadMatrix parses whitespace-separated rows. Every row must have the same
// number of columns.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var (
		data []float64
		cols int
		rows int
	)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("row %d: %w: %d columns, want %d", rows, modem.ErrLengthMismatch, len(fields), cols)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w: %v", rows, modem.ErrMalformedBitstream, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("read matrix: %w: no rows", modem.ErrMalformedBitstream)
	}
	return mat.NewDense(rows, cols, data), nil
}

// WriteMatrixFile writes m to path, zstd-compressing when path ends in
// ZstdSuffix.
func WriteMatrixFile(path string, m mat.Matrix, format MatrixFormat) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, ZstdSuffix) {
		return WriteMatrix(f, m, format)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if err := WriteMatrix(enc, m, format); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadMatrixFile reads a matrix written by WriteMatrixFile.
func ReadMatrixFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ZstdSuffix) {
		return ReadMatrix(f)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	return ReadMatrix(dec)
}
