package store

import (
	"bufio"
	"fmt"
	"io"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// WriteModulationTable writes the scheme-specific view of the transmitted
// symbols: one frequency per line for FSK8, "I Q" pairs otherwise.
func WriteModulationTable(w io.Writer, tx *modem.Transmission) error {
	bw := bufio.NewWriter(w)
	for _, p := range tx.Points {
		if tx.Scheme == modem.FSK8 {
			fmt.Fprintf(bw, "%.0f\n", p.Frequency)
		} else {
			fmt.Fprintf(bw, "%.6f %.6f\n", p.I, p.Q)
		}
	}
	return bw.Flush()
}

// WriteDetectionTable writes one tab-separated row per decision.
func WriteDetectionTable(w io.Writer, det *modem.Detection) error {
	a, err := modem.AlphabetFor(det.Scheme)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	switch det.Scheme {
	case modem.FSK8:
		fmt.Fprintln(bw, "gray_symbol\tbinary\tfrequency_hz")
	case modem.QAM16:
		fmt.Fprintln(bw, "index\tbits\ti\tq")
	case modem.PSK8:
		fmt.Fprintln(bw, "gray_symbol\tbinary\tphase_rad\ti\tq")
	}
	for _, d := range det.Decisions {
		raw, err := a.RawValue(d.Index)
		if err != nil {
			return err
		}
		switch det.Scheme {
		case modem.FSK8:
			fmt.Fprintf(bw, "%d\t%d\t%.0f\n", d.Index, raw, d.Point.Frequency)
		case modem.QAM16:
			fmt.Fprintf(bw, "%d\t%s\t%g\t%g\n", d.Index, bitString(d.Bits), d.Point.I, d.Point.Q)
		case modem.PSK8:
			fmt.Fprintf(bw, "%d\t%d\t%.4f\t%.4f\t%.4f\n", d.Index, raw, d.Point.Phase, d.Point.I, d.Point.Q)
		}
	}
	return bw.Flush()
}
