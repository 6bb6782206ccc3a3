package store

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// bpcMarker matches the trailer line of a code file. The Spanish spelling is
// what older runs wrote.
var bpcMarker = regexp.MustCompile(`^Bits (?:per character|por car[aá]cter):\s*(\d+)\s*$`)

// BitFile is the content of a bit file.
type BitFile struct {
	Bits []byte

	// BitsPerCharacter is the code width from the trailer line, 0 when the
	// file had none.
	BitsPerCharacter int
}

// ReadBits parses either a code file (one fixed-width code per line,
// closed by a "Bits per character: N" line) or a plain file with one or
// more bits per line.
func ReadBits(r io.Reader) (*BitFile, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	bf := &BitFile{}
	var widths []int
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if m := bpcMarker.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("line %d: %w: bad bits per character %q", lineNo, modem.ErrMalformedBitstream, m[1])
			}
			bf.BitsPerCharacter = n
			continue
		}
		for _, c := range line {
			switch c {
			case '0':
				bf.Bits = append(bf.Bits, 0)
			case '1':
				bf.Bits = append(bf.Bits, 1)
			default:
				return nil, fmt.Errorf("line %d: %w: unexpected %q", lineNo, modem.ErrMalformedBitstream, c)
			}
		}
		widths = append(widths, len(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read bits: %w", err)
	}

	if bf.BitsPerCharacter > 0 {
		for i, w := range widths {
			if w != bf.BitsPerCharacter {
				return nil, fmt.Errorf("code %d: %w: %d bits, want %d", i, modem.ErrMalformedBitstream, w, bf.BitsPerCharacter)
			}
		}
	}
	return bf, nil
}

// WriteCodes writes one code per line followed by the bits-per-character
// trailer.
func WriteCodes(w io.Writer, codes [][]byte, bitsPerCharacter int) error {
	bw := bufio.NewWriter(w)
	for _, c := range codes {
		bw.WriteString(bitString(c))
		bw.WriteByte('\n')
	}
	fmt.Fprintf(bw, "Bits per character: %d\n", bitsPerCharacter)
	return bw.Flush()
}

// WriteBits writes one bit per line.
func WriteBits(w io.Writer, bits []byte) error {
	bw := bufio.NewWriter(w)
	for _, b := range bits {
		bw.WriteByte('0' + b&1)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func bitString(bits []byte) string {
	var sb strings.Builder
	sb.Grow(len(bits))
	for _, b := range bits {
		sb.WriteByte('0' + b&1)
	}
	return sb.String()
}
