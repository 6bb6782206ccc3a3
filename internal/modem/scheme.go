package modem

import (
	"fmt"
	"strings"
)

// Scheme identifies one of the supported modulation families.
type Scheme int

const (
	FSK8  Scheme = iota + 1 // 8-ary frequency-shift keying, 3 bits per symbol
	QAM16                   // 16-ary quadrature amplitude modulation, 4 bits per symbol
	PSK8                    // 8-ary phase-shift keying, 3 bits per symbol
)

// Schemes lists every supported scheme in menu order.
var Schemes = []Scheme{FSK8, QAM16, PSK8}

// BitsPerSymbol returns the number of bits carried by one symbol.
func (s Scheme) BitsPerSymbol() int {
	switch s {
	case FSK8, PSK8:
		return 3
	case QAM16:
		return 4
	default:
		return 0
	}
}

// ConstellationSize returns the number of distinct symbols.
func (s Scheme) ConstellationSize() int {
	if !s.Valid() {
		return 0
	}
	return 1 << s.BitsPerSymbol()
}

// Valid reports whether s is one of the supported schemes.
func (s Scheme) Valid() bool {
	return s.BitsPerSymbol() > 0
}

// String returns the scheme name.
func (s Scheme) String() string {
	switch s {
	case FSK8:
		return "8FSK"
	case QAM16:
		return "16QAM"
	case PSK8:
		return "8PSK"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheme) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedScheme, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseScheme resolves a scheme from its name ("8FSK", "16-QAM", "psk8")
// or its menu key ("1", "2", "3").
func ParseScheme(name string) (Scheme, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", ""))
	switch key {
	case "1", "8FSK", "FSK8":
		return FSK8, nil
	case "2", "16QAM", "QAM16":
		return QAM16, nil
	case "3", "8PSK", "PSK8":
		return PSK8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, name)
}
