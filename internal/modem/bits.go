package modem

import "fmt"

// ValidateBits checks that every element of bits is 0 or 1.
func ValidateBits(bits []byte) error {
	for i, b := range bits {
		if b > 1 {
			return fmt.Errorf("%w: value %d at position %d", ErrMalformedBitstream, b, i)
		}
	}
	return nil
}

// BytesToBits unpacks bytes MSB first into one bit per element.
func BytesToBits(data []byte) []byte {
	bits := make([]byte, len(data)*8)
	for i, b := range data {
		for j := 7; j >= 0; j-- {
			bits[i*8+(7-j)] = (b >> uint(j)) & 1
		}
	}
	return bits
}

// BitsToBytes packs bits MSB first. A trailing partial byte is zero-filled
// on the right.
func BitsToBytes(bits []byte) []byte {
	data := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		data[i/8] |= (bit & 1) << uint(7-i%8)
	}
	return data
}
