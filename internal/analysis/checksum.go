package analysis

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// Checksum computes the CRC-32 (IEEE) of a bitstream packed MSB first.
func Checksum(bits []byte) uint32 {
	return crc32.ChecksumIEEE(modem.BitsToBytes(bits))
}

// ChecksumBytes returns the bitstream CRC-32 as a 4-byte big-endian slice.
func ChecksumBytes(bits []byte) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, Checksum(bits))
	return buf
}
