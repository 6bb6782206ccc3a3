package modem

import (
	"fmt"
	"math"
)

// Point is the scheme-specific constellation position of a symbol.
// FSK8 only uses Frequency; QAM16 and PSK8 use I and Q, PSK8 also fills Phase.
type Point struct {
	Frequency float64 `json:"frequency_hz,omitempty"`
	I         float64 `json:"i"`
	Q         float64 `json:"q"`
	Phase     float64 `json:"phase_rad,omitempty"`
}

// String formats the point the way the diagnostics tables print it.
func (p Point) String() string {
	if p.Frequency != 0 {
		return fmt.Sprintf("%.0f Hz", p.Frequency)
	}
	return fmt.Sprintf("I=%.3f, Q=%.3f", p.I, p.Q)
}

// FSK8 tone plan: 8 frequencies linearly spaced from 1 kHz to 8 kHz.
const (
	FSKBaseFrequency = 1000.0
	FSKToneSpacing   = 1000.0
)

// gray8 is the reflected Gray sequence used by 8PSK.
var gray8 = [8]int{0, 1, 3, 2, 6, 7, 5, 4}

// qam16Table is the 16QAM bit pattern to (I,Q) mapping. The one-hot slot of a
// pattern is its row in this table, so the order must not change.
var qam16Table = [16]struct {
	bits string
	i, q float64
}{
	{"0100", -3, +3}, {"0110", -1, +3}, {"1110", +1, +3}, {"1100", +3, +3},
	{"0101", -3, +1}, {"0111", -1, +1}, {"1111", +1, +1}, {"1101", +3, +1},
	{"0001", -3, -1}, {"0011", -1, -1}, {"1011", +1, -1}, {"1001", +3, -1},
	{"0000", -3, -3}, {"0010", -1, -3}, {"1010", +1, -3}, {"1000", +3, -3},
}

// Alphabet holds the bit pattern ↔ symbol index ↔ constellation point
// bijection for one scheme. It is immutable once built.
type Alphabet struct {
	scheme     Scheme
	rawToIndex []int // raw unsigned value of the bit pattern -> symbol index
	indexToRaw []int
	points     []Point
}

var alphabets = func() map[Scheme]*Alphabet {
	m := make(map[Scheme]*Alphabet, len(Schemes))
	for _, s := range Schemes {
		a, err := NewAlphabet(s)
		if err != nil {
			panic(err)
		}
		m[s] = a
	}
	return m
}()

// AlphabetFor returns the shared, read-only alphabet of s.
func AlphabetFor(s Scheme) (*Alphabet, error) {
	a, ok := alphabets[s]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScheme, s)
	}
	return a, nil
}

// NewAlphabet builds the alphabet of s.
func NewAlphabet(s Scheme) (*Alphabet, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScheme, s)
	}
	size := s.ConstellationSize()
	a := &Alphabet{
		scheme:     s,
		rawToIndex: make([]int, size),
		indexToRaw: make([]int, size),
		points:     make([]Point, size),
	}

	switch s {
	case FSK8:
		a.generateFSK()
	case QAM16:
		a.generateQAM()
	case PSK8:
		a.generatePSK()
	}

	if err := a.verify(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Alphabet) generateFSK() {
	for n := range a.rawToIndex {
		a.rawToIndex[n] = BinaryToGray(n)
	}
	for idx := range a.indexToRaw {
		a.indexToRaw[idx] = GrayToBinary(idx)
		a.points[idx] = Point{Frequency: FSKBaseFrequency + float64(idx)*FSKToneSpacing}
	}
}

func (a *Alphabet) generateQAM() {
	for idx, row := range qam16Table {
		raw := 0
		for _, c := range row.bits {
			raw = raw<<1 | int(c-'0')
		}
		a.rawToIndex[raw] = idx
		a.indexToRaw[idx] = raw
		a.points[idx] = Point{I: row.i, Q: row.q}
	}
}

func (a *Alphabet) generatePSK() {
	for n, idx := range gray8 {
		a.rawToIndex[n] = idx
		a.indexToRaw[idx] = n
	}
	for idx := range a.points {
		phase := 2 * math.Pi * float64(idx) / float64(len(a.points))
		a.points[idx] = Point{I: math.Cos(phase), Q: math.Sin(phase), Phase: phase}
	}
}

// verify checks that the two tables are inverse permutations.
func (a *Alphabet) verify() error {
	seen := make([]bool, len(a.indexToRaw))
	for raw, idx := range a.rawToIndex {
		if idx < 0 || idx >= len(seen) || seen[idx] {
			return fmt.Errorf("%v alphabet: index %d assigned twice", a.scheme, idx)
		}
		seen[idx] = true
		if a.indexToRaw[idx] != raw {
			return fmt.Errorf("%v alphabet: index %d maps back to %d, want %d", a.scheme, idx, a.indexToRaw[idx], raw)
		}
	}
	return nil
}

// Scheme returns the scheme the alphabet belongs to.
func (a *Alphabet) Scheme() Scheme { return a.scheme }

// Size returns the number of symbols.
func (a *Alphabet) Size() int { return len(a.points) }

// BitsPerSymbol returns the width of a bit pattern.
func (a *Alphabet) BitsPerSymbol() int { return a.scheme.BitsPerSymbol() }

// BitsToIndex maps a bit pattern to its symbol index.
func (a *Alphabet) BitsToIndex(bits []byte) (int, error) {
	if len(bits) != a.BitsPerSymbol() {
		return 0, fmt.Errorf("%w: %v pattern has %d bits, want %d", ErrLengthMismatch, a.scheme, len(bits), a.BitsPerSymbol())
	}
	if err := ValidateBits(bits); err != nil {
		return 0, err
	}
	return a.rawToIndex[bitsToIndex(bits)], nil
}

// IndexToBits maps a symbol index back to a fresh copy of its bit pattern.
func (a *Alphabet) IndexToBits(idx int) ([]byte, error) {
	if err := a.checkIndex(idx); err != nil {
		return nil, err
	}
	return indexToBits(a.indexToRaw[idx], a.BitsPerSymbol()), nil
}

// IndexToPoint returns the constellation point of a symbol index.
func (a *Alphabet) IndexToPoint(idx int) (Point, error) {
	if err := a.checkIndex(idx); err != nil {
		return Point{}, err
	}
	return a.points[idx], nil
}

// RawValue returns the unsigned integer the symbol's bit pattern encodes.
func (a *Alphabet) RawValue(idx int) (int, error) {
	if err := a.checkIndex(idx); err != nil {
		return 0, err
	}
	return a.indexToRaw[idx], nil
}

func (a *Alphabet) checkIndex(idx int) error {
	if idx < 0 || idx >= len(a.points) {
		return fmt.Errorf("%w: symbol index %d outside %v constellation of %d", ErrLengthMismatch, idx, a.scheme, len(a.points))
	}
	return nil
}

// BinaryToGray converts n to its reflected Gray code.
func BinaryToGray(n int) int {
	return n ^ (n >> 1)
}

// GrayToBinary inverts BinaryToGray by folding the shifted code back in.
func GrayToBinary(g int) int {
	b := 0
	for g != 0 {
		b ^= g
		g >>= 1
	}
	return b
}

func bitsToIndex(bits []byte) int {
	idx := 0
	for _, b := range bits {
		idx = (idx << 1) | int(b&1)
	}
	return idx
}

func indexToBits(idx, numBits int) []byte {
	bits := make([]byte, numBits)
	for i := numBits - 1; i >= 0; i-- {
		bits[i] = byte(idx & 1)
		idx >>= 1
	}
	return bits
}
