package audio

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// Device describes an output-capable audio device.
type Device struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default"`
}

// ListDevices returns the devices that can play sound.
func ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var defaultName string
	if d, err := portaudio.DefaultOutputDevice(); err == nil {
		defaultName = d.Name
	}

	var out []Device
	for i, d := range devices {
		if d.MaxOutputChannels < 1 {
			continue
		}
		dev := Device{
			Index:             i,
			Name:              d.Name,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         d.Name == defaultName,
		}
		if d.HostApi != nil {
			dev.HostAPI = d.HostApi.Name
		}
		out = append(out, dev)
	}
	return out, nil
}

// PrintDevices writes the output devices to w.
func PrintDevices(w io.Writer) error {
	devices, err := ListDevices()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Output devices:")
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (no devices found)")
		return nil
	}
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = " [DEFAULT]"
		}
		fmt.Fprintf(w, "  %d: %s (%s, out:%d rate:%.0f)%s\n",
			d.Index, d.Name, d.HostAPI, d.MaxOutputChannels, d.DefaultSampleRate, def)
	}
	return nil
}
