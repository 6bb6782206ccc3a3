package analysis

import (
	"fmt"
	"io"
	"strings"
)

// WriteText renders the comparison as a plain-text report.
func (r *Result) WriteText(w io.Writer) error {
	var sb strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, "TRANSMISSION COMPARISON REPORT")
	fmt.Fprintln(&sb, rule)
	fmt.Fprintf(&sb, "Bits per character:       %d\n", r.BitsPerCharacter)
	fmt.Fprintf(&sb, "Original codes:           %d\n", r.OriginalCodes)
	fmt.Fprintf(&sb, "Recovered codes:          %d\n", r.RecoveredCodes)
	if r.OriginalRemainder > 0 || r.RecoveredRemainder > 0 {
		fmt.Fprintf(&sb, "Incomplete trailing bits: %d original, %d recovered\n", r.OriginalRemainder, r.RecoveredRemainder)
	}
	if r.LengthMismatch {
		fmt.Fprintf(&sb, "WARNING: lengths differ, compared the first %d codes only\n", r.TotalCodes)
	}
	fmt.Fprintln(&sb)

	fmt.Fprintf(&sb, "Code errors:              %d of %d (%.4f%%)\n", r.CodeErrors, r.TotalCodes, r.CodeErrorPercent)
	fmt.Fprintf(&sb, "Bit errors:               %d of %d (%.4f%%)\n", r.BitErrors, r.TotalBits, r.BitErrorPercent)
	fmt.Fprintf(&sb, "BER:                      %.6e\n", r.BER)
	fmt.Fprintf(&sb, "Ps (k=%d):                 %.6e\n", r.SymbolBits, r.Ps)
	fmt.Fprintf(&sb, "CRC-32 original:          %08x\n", r.OriginalCRC)
	fmt.Fprintf(&sb, "CRC-32 recovered:         %08x\n", r.RecoveredCRC)
	fmt.Fprintln(&sb)

	if len(r.FirstErrors) == 0 {
		fmt.Fprintln(&sb, "No code errors.")
	} else {
		fmt.Fprintf(&sb, "First %d erroneous codes:\n", len(r.FirstErrors))
		fmt.Fprintln(&sb, "  position  original  recovered")
		for _, e := range r.FirstErrors {
			fmt.Fprintf(&sb, "  %8d  %8s  %9s\n", e.Position, e.Original, e.Recovered)
		}
	}
	fmt.Fprintln(&sb, rule)

	_, err := io.WriteString(w, sb.String())
	return err
}
