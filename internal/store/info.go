package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/manumagallanes/STransmision/internal/channel"
	"github.com/manumagallanes/STransmision/internal/modem"
)

// ModulationMetadata is the modulator hand-off file.
type ModulationMetadata = modem.Metadata

// ChannelInfo is the channel hand-off file.
type ChannelInfo struct {
	ModulationType    modem.Scheme   `json:"modulation_type"`
	ConstellationSize int            `json:"constellation_size"`
	TotalSymbols      int            `json:"total_symbols"`
	Padding           int            `json:"padding"`
	BitsPerCharacter  *int           `json:"bits_per_character"`
	N0                float64        `json:"N0"`
	Seed              uint64         `json:"seed"`
	Stream            uint64         `json:"stream"`
	SNRMetrics        channel.Params `json:"snr_metrics"`
	NoiseVariance     float64        `json:"noise_variance"`
}

// NewChannelInfo summarizes a reception.
func NewChannelInfo(rx *channel.Reception, md ModulationMetadata, seed, stream uint64) ChannelInfo {
	return ChannelInfo{
		ModulationType:    rx.Scheme,
		ConstellationSize: rx.Scheme.ConstellationSize(),
		TotalSymbols:      rx.NumSymbols(),
		Padding:           rx.Padding,
		BitsPerCharacter:  md.BitsPerCharacter,
		N0:                rx.Params.N0,
		Seed:              seed,
		Stream:            stream,
		SNRMetrics:        rx.Params,
		NoiseVariance:     rx.NoiseVariance(),
	}
}

// DemodulationInfo is the detector hand-off file.
type DemodulationInfo struct {
	ModulationType        modem.Scheme    `json:"modulation_type"`
	ConstellationSize     int             `json:"constellation_size"`
	TotalSymbolsProcessed int             `json:"total_symbols_processed"`
	PaddingRemoved        int             `json:"padding_removed"`
	BitsPerCharacter      *int            `json:"bits_per_character"`
	ElapsedSeconds        float64         `json:"elapsed_time"`
	SNRInfo               *channel.Params `json:"snr_info"`
}

// WriteJSON writes v to path as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
