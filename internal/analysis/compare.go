// Package analysis measures how faithfully a recovered bitstream matches
// the one that was sent.
package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// DefaultSymbolBits is the symbol width used for Ps when no scheme is given.
const DefaultSymbolBits = 3

// MaxListedErrors bounds Result.FirstErrors.
const MaxListedErrors = 10

// Options control Compare.
type Options struct {
	// BitsPerCharacter groups the streams into source codes. Zero compares
	// bit by bit.
	BitsPerCharacter int

	// Scheme supplies k in Ps = 1 - (1 - BER)^k. The zero value uses
	// DefaultSymbolBits.
	Scheme modem.Scheme

	// Strict rejects streams of different length instead of comparing their
	// common prefix.
	Strict bool
}

// CodeError is one mismatching source code.
type CodeError struct {
	Position  int    `json:"position"`
	Original  string `json:"original"`
	Recovered string `json:"recovered"`
}

// Result is the outcome of comparing two bitstreams.
type Result struct {
	BitsPerCharacter int `json:"bits_per_character"`
	SymbolBits       int `json:"symbol_bits"`

	OriginalCodes  int `json:"original_codes"`
	RecoveredCodes int `json:"recovered_codes"`
	// Trailing bits that did not fill a whole code.
	OriginalRemainder  int  `json:"original_remainder"`
	RecoveredRemainder int  `json:"recovered_remainder"`
	LengthMismatch     bool `json:"length_mismatch"`

	TotalCodes       int     `json:"total_codes"`
	CodeErrors       int     `json:"code_errors"`
	CodeErrorPercent float64 `json:"code_error_percent"`
	TotalBits        int     `json:"total_bits"`
	BitErrors        int     `json:"bit_errors"`
	BitErrorPercent  float64 `json:"bit_error_percent"`
	BER              float64 `json:"ber"`
	Ps               float64 `json:"ps"`

	FirstErrors []CodeError `json:"first_errors"`

	OriginalCRC  uint32 `json:"original_crc"`
	RecoveredCRC uint32 `json:"recovered_crc"`
}

// Identical reports whether the compared codes matched exactly and nothing
// was left out.
func (r *Result) Identical() bool {
	return r.BitErrors == 0 && !r.LengthMismatch && r.OriginalCRC == r.RecoveredCRC
}

// GroupCodes splits bits into consecutive codes of width bitsPerCharacter.
// The number of trailing bits that did not fill a code is returned as
// remainder.
func GroupCodes(bits []byte, bitsPerCharacter int) (codes [][]byte, remainder int, err error) {
	if bitsPerCharacter < 1 {
		return nil, 0, fmt.Errorf("%w: bits per character %d", modem.ErrMalformedBitstream, bitsPerCharacter)
	}
	if err := modem.ValidateBits(bits); err != nil {
		return nil, 0, err
	}
	n := len(bits) / bitsPerCharacter
	codes = make([][]byte, n)
	for i := range codes {
		codes[i] = bits[i*bitsPerCharacter : (i+1)*bitsPerCharacter]
	}
	return codes, len(bits) % bitsPerCharacter, nil
}

// Compare evaluates recovered against original code by code.
func Compare(original, recovered []byte, opts Options) (*Result, error) {
	bpc := opts.BitsPerCharacter
	if bpc == 0 {
		bpc = 1
	}
	k := DefaultSymbolBits
	if opts.Scheme != 0 {
		if !opts.Scheme.Valid() {
			return nil, fmt.Errorf("compare: %w: %v", modem.ErrUnsupportedScheme, opts.Scheme)
		}
		k = opts.Scheme.BitsPerSymbol()
	}

	origCodes, origRem, err := GroupCodes(original, bpc)
	if err != nil {
		return nil, fmt.Errorf("compare original: %w", err)
	}
	recCodes, recRem, err := GroupCodes(recovered, bpc)
	if err != nil {
		return nil, fmt.Errorf("compare recovered: %w", err)
	}

	res := &Result{
		BitsPerCharacter:   bpc,
		SymbolBits:         k,
		OriginalCodes:      len(origCodes),
		RecoveredCodes:     len(recCodes),
		OriginalRemainder:  origRem,
		RecoveredRemainder: recRem,
		LengthMismatch:     len(original) != len(recovered),
		OriginalCRC:        Checksum(original),
		RecoveredCRC:       Checksum(recovered),
		FirstErrors:        []CodeError{},
	}
	if res.LengthMismatch && opts.Strict {
		return nil, fmt.Errorf("compare: %w: %d original bits, %d recovered", modem.ErrLengthMismatch, len(original), len(recovered))
	}

	n := min(len(origCodes), len(recCodes))
	if n == 0 {
		return nil, fmt.Errorf("compare: %w: no complete codes to compare", modem.ErrMalformedBitstream)
	}

	for i := 0; i < n; i++ {
		diff := 0
		for j := range origCodes[i] {
			if origCodes[i][j] != recCodes[i][j] {
				diff++
			}
		}
		if diff == 0 {
			continue
		}
		res.CodeErrors++
		res.BitErrors += diff
		if len(res.FirstErrors) < MaxListedErrors {
			res.FirstErrors = append(res.FirstErrors, CodeError{
				Position:  i,
				Original:  codeString(origCodes[i]),
				Recovered: codeString(recCodes[i]),
			})
		}
	}

	res.TotalCodes = n
	res.TotalBits = n * bpc
	res.CodeErrorPercent = 100 * float64(res.CodeErrors) / float64(res.TotalCodes)
	res.BitErrorPercent = 100 * float64(res.BitErrors) / float64(res.TotalBits)
	res.BER = float64(res.BitErrors) / float64(res.TotalBits)
	res.Ps = 1 - math.Pow(1-res.BER, float64(k))
	return res, nil
}

// SymbolStats is the measured symbol error rate.
type SymbolStats struct {
	Symbols int     `json:"symbols"`
	Errors  int     `json:"errors"`
	Rate    float64 `json:"rate"`
}

// SymbolErrors counts positions where the detected index differs from the
// sent one.
func SymbolErrors(sent, detected []int) (SymbolStats, error) {
	if len(sent) != len(detected) {
		return SymbolStats{}, fmt.Errorf("symbol errors: %w: %d sent, %d detected", modem.ErrLengthMismatch, len(sent), len(detected))
	}
	st := SymbolStats{Symbols: len(sent)}
	for i := range sent {
		if sent[i] != detected[i] {
			st.Errors++
		}
	}
	if st.Symbols > 0 {
		st.Rate = float64(st.Errors) / float64(st.Symbols)
	}
	return st, nil
}

func codeString(code []byte) string {
	var sb strings.Builder
	sb.Grow(len(code))
	for _, b := range code {
		sb.WriteByte('0' + b)
	}
	return sb.String()
}
