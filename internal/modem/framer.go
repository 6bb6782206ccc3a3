package modem

import "fmt"

// Frame is a bitstream padded to a whole number of symbols.
type Frame struct {
	Bits    []byte
	Padding int // zero bits appended at the end, always < bits per symbol

	// BitsPerCharacter is the code width of the upstream source encoding.
	// The modem only carries it along; 0 means unknown.
	BitsPerCharacter int
}

// Pad right-pads bits with zeros so that the length is a multiple of
// bitsPerSymbol. The input slice is left untouched.
func Pad(bits []byte, bitsPerSymbol int) ([]byte, int, error) {
	if bitsPerSymbol < 1 {
		return nil, 0, fmt.Errorf("%w: bits per symbol %d", ErrUnsupportedScheme, bitsPerSymbol)
	}
	if err := ValidateBits(bits); err != nil {
		return nil, 0, err
	}

	padding := 0
	if rem := len(bits) % bitsPerSymbol; rem != 0 {
		padding = bitsPerSymbol - rem
	}
	padded := make([]byte, len(bits)+padding)
	copy(padded, bits)
	return padded, padding, nil
}

// NewFrame pads bits for transmission with scheme s.
func NewFrame(bits []byte, s Scheme, bitsPerCharacter int) (*Frame, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScheme, s)
	}
	if bitsPerCharacter < 0 {
		return nil, fmt.Errorf("%w: bits per character %d", ErrMalformedBitstream, bitsPerCharacter)
	}
	padded, padding, err := Pad(bits, s.BitsPerSymbol())
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	return &Frame{
		Bits:             padded,
		Padding:          padding,
		BitsPerCharacter: bitsPerCharacter,
	}, nil
}

// NumSymbols returns how many symbols the frame occupies with scheme s.
func (f *Frame) NumSymbols(s Scheme) int {
	if !s.Valid() {
		return 0
	}
	return len(f.Bits) / s.BitsPerSymbol()
}

// Unpad drops the frame's padding from the end of bits.
func (f *Frame) Unpad(bits []byte) []byte {
	return TrimPadding(bits, f.Padding)
}

// TrimPadding drops the last padding bits. A negative padding means the
// amount is unknown and bits is returned as is.
func TrimPadding(bits []byte, padding int) []byte {
	if padding <= 0 {
		return bits
	}
	if padding > len(bits) {
		return bits[:0]
	}
	return bits[:len(bits)-padding]
}
