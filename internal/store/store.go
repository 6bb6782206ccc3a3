// Package store reads and writes the artifacts exchanged between the
// stages of the link, so each stage can run on its own.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/manumagallanes/STransmision/internal/analysis"
	"github.com/manumagallanes/STransmision/internal/channel"
	"github.com/manumagallanes/STransmision/internal/modem"
	"github.com/manumagallanes/STransmision/internal/source"
)

// Well-known artifact names.
const (
	EncodedSignalFile      = "1_encoded_signal.txt"
	QuantizedSignalFile    = "1_quantized_signal.txt"
	ModulatedSignalFile    = "2_modulated_signal.txt"
	ModulationMetadataFile = "2_modulation_metadata.json"
	ChannelOutputFile      = "3_channel_output.txt"
	ChannelNoiseFile       = "3_channel_noise.txt"
	ChannelInfoFile        = "3_channel_info.json"
	DemodulatedBitsFile    = "4_demodulated_bits.txt"
	DemodulationInfoFile   = "4_demodulation_info.json"
	ComparisonReportFile   = "5_comparison_report.txt"
)

// ErrAmbiguousArtifact reports an artifact present both plain and
// compressed.
var ErrAmbiguousArtifact = errors.New("ambiguous artifact")

// Dir is a directory holding one run's artifacts.
type Dir struct {
	Path string

	// Compress writes matrix artifacts zstd-compressed.
	Compress bool
}

// Open creates the directory if needed.
func Open(path string, compress bool) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Dir{Path: path, Compress: compress}, nil
}

// File returns the path of a named artifact.
func (d *Dir) File(name string) string {
	return filepath.Join(d.Path, name)
}

// ModulationTableFile names the modulator diagnostics table of s.
func ModulationTableFile(s modem.Scheme) string {
	return fmt.Sprintf("2_modulated_%s_specific.txt", strings.ToLower(s.String()))
}

// DetectionTableFile names the detector diagnostics table of s.
func DetectionTableFile(s modem.Scheme) string {
	return fmt.Sprintf("4_demodulated_%s_specific.txt", strings.ToLower(s.String()))
}

func (d *Dir) matrixPath(name string) string {
	if d.Compress {
		return d.File(name + ZstdSuffix)
	}
	return d.File(name)
}

// writeMatrix writes a matrix artifact in the directory's format and
// removes a copy left in the other format.
func (d *Dir) writeMatrix(name string, m mat.Matrix, format MatrixFormat) error {
	if err := WriteMatrixFile(d.matrixPath(name), m, format); err != nil {
		return err
	}
	stale := d.File(name)
	if !d.Compress {
		stale += ZstdSuffix
	}
	if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", stale, err)
	}
	return nil
}

// findMatrix returns the plain or compressed artifact. Both being present
// means one of them is stale, so that is an error.
func (d *Dir) findMatrix(name string) (string, error) {
	var found []string
	for _, p := range []string{d.File(name), d.File(name + ZstdSuffix)} {
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%s: %w", d.File(name), fs.ErrNotExist)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%s: %w: both plain and %s copies exist", d.File(name), ErrAmbiguousArtifact, ZstdSuffix)
	}
}

// RemoveReception deletes the channel artifacts, in either format.
func (d *Dir) RemoveReception() error {
	var paths []string
	for _, name := range []string{ChannelOutputFile, ChannelNoiseFile} {
		paths = append(paths, d.File(name), d.File(name+ZstdSuffix))
	}
	paths = append(paths, d.File(ChannelInfoFile))

	var removed int
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	if removed > 0 {
		log.Printf("Removed %d stale channel artifacts from %s", removed, d.Path)
	}
	return nil
}

func (d *Dir) writeFile(name string, write func(f *os.File) error) (err error) {
	path := d.File(name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SaveEncoding writes the source codes and the quantized samples.
func (d *Dir) SaveEncoding(enc *source.Encoding) error {
	if err := d.writeFile(EncodedSignalFile, func(f *os.File) error {
		return WriteCodes(f, enc.Codes, enc.BitsPerCharacter)
	}); err != nil {
		return err
	}
	q := mat.NewDense(len(enc.Quantized), 1, enc.Quantized)
	if err := WriteMatrixFile(d.File(QuantizedSignalFile), q, FormatFloat); err != nil {
		return err
	}
	log.Printf("Saved %d codes of %d bits to %s", len(enc.Codes), enc.BitsPerCharacter, d.Path)
	return nil
}

// LoadBits reads a bit file from the directory.
func (d *Dir) LoadBits(name string) (*BitFile, error) {
	f, err := os.Open(d.File(name))
	if err != nil {
		return nil, fmt.Errorf("open bits: %w", err)
	}
	defer f.Close()
	bf, err := ReadBits(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return bf, nil
}

// SaveTransmission writes the one-hot matrix, its metadata and the
// modulator diagnostics table. Channel artifacts of an earlier
// transmission are removed.
func (d *Dir) SaveTransmission(tx *modem.Transmission) error {
	if err := d.RemoveReception(); err != nil {
		return err
	}
	if err := d.writeMatrix(ModulatedSignalFile, tx.Symbols, FormatInteger); err != nil {
		return err
	}
	if err := WriteJSON(d.File(ModulationMetadataFile), tx.Metadata()); err != nil {
		return err
	}
	if err := d.writeFile(ModulationTableFile(tx.Scheme), func(f *os.File) error {
		return WriteModulationTable(f, tx)
	}); err != nil {
		return err
	}
	log.Printf("Saved %d %v symbols to %s", tx.NumSymbols(), tx.Scheme, d.Path)
	return nil
}

// LoadTransmission reads the one-hot matrix and its metadata.
func (d *Dir) LoadTransmission() (*mat.Dense, ModulationMetadata, error) {
	var md ModulationMetadata
	if err := ReadJSON(d.File(ModulationMetadataFile), &md); err != nil {
		return nil, md, err
	}
	path, err := d.findMatrix(ModulatedSignalFile)
	if err != nil {
		return nil, md, err
	}
	m, err := ReadMatrixFile(path)
	if err != nil {
		return nil, md, err
	}
	if rows, cols := m.Dims(); rows != md.TotalSymbols || cols != md.ConstellationSize {
		return nil, md, fmt.Errorf("%s: %w: %dx%d matrix, metadata says %dx%d",
			path, modem.ErrLengthMismatch, rows, cols, md.TotalSymbols, md.ConstellationSize)
	}
	return m, md, nil
}

// SaveReception writes the noisy matrix, the noise and the channel info.
func (d *Dir) SaveReception(rx *channel.Reception, info ChannelInfo) error {
	if err := d.writeMatrix(ChannelOutputFile, rx.Received, FormatFloat); err != nil {
		return err
	}
	if err := d.writeMatrix(ChannelNoiseFile, rx.Noise, FormatFloat); err != nil {
		return err
	}
	if err := WriteJSON(d.File(ChannelInfoFile), info); err != nil {
		return err
	}
	log.Printf("Saved channel output (N0=%g, Eb/N0=%.2f dB) to %s", info.N0, info.SNRMetrics.EbN0dB, d.Path)
	return nil
}

// LoadReception reads the received matrix and the channel info.
func (d *Dir) LoadReception() (*mat.Dense, ChannelInfo, error) {
	var info ChannelInfo
	if err := ReadJSON(d.File(ChannelInfoFile), &info); err != nil {
		return nil, info, err
	}
	path, err := d.findMatrix(ChannelOutputFile)
	if err != nil {
		return nil, info, err
	}
	m, err := ReadMatrixFile(path)
	if err != nil {
		return nil, info, err
	}
	if rows, cols := m.Dims(); rows != info.TotalSymbols || cols != info.ConstellationSize {
		return nil, info, fmt.Errorf("%s: %w: %dx%d matrix, channel info says %dx%d",
			path, modem.ErrLengthMismatch, rows, cols, info.TotalSymbols, info.ConstellationSize)
	}
	return m, info, nil
}

// SaveDetection writes the recovered bits, the detection info and the
// detector diagnostics table.
func (d *Dir) SaveDetection(det *modem.Detection, info DemodulationInfo) error {
	if err := d.writeFile(DemodulatedBitsFile, func(f *os.File) error {
		return WriteBits(f, det.Bits)
	}); err != nil {
		return err
	}
	if err := WriteJSON(d.File(DemodulationInfoFile), info); err != nil {
		return err
	}
	if err := d.writeFile(DetectionTableFile(det.Scheme), func(f *os.File) error {
		return WriteDetectionTable(f, det)
	}); err != nil {
		return err
	}
	log.Printf("Saved %d recovered bits to %s", len(det.Bits), d.Path)
	return nil
}

// LoadDemodulationInfo reads the detection info.
func (d *Dir) LoadDemodulationInfo() (DemodulationInfo, error) {
	var info DemodulationInfo
	err := ReadJSON(d.File(DemodulationInfoFile), &info)
	return info, err
}

// SaveReport writes the comparison report, prefixed with the link
// parameters when info is not nil.
func (d *Dir) SaveReport(res *analysis.Result, info *DemodulationInfo) error {
	return d.writeFile(ComparisonReportFile, func(f *os.File) error {
		if info != nil {
			fmt.Fprintf(f, "Modulation:     %v\n", info.ModulationType)
			fmt.Fprintf(f, "Constellation:  %d\n", info.ConstellationSize)
			if info.SNRInfo != nil {
				fmt.Fprintf(f, "Eb/N0:          %.2f dB\n", info.SNRInfo.EbN0dB)
				fmt.Fprintf(f, "Es/N0:          %.2f dB\n", info.SNRInfo.EsN0dB)
			}
			fmt.Fprintln(f)
		}
		return res.WriteText(f)
	})
}
