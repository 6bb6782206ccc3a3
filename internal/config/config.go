// Package config loads the simulator settings from YAML.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manumagallanes/STransmision/internal/modem"
)

// Config is the complete simulator configuration.
type Config struct {
	Scheme    modem.Scheme `yaml:"scheme"`
	Amplitude float64      `yaml:"amplitude"`

	Channel ChannelConfig `yaml:"channel"`
	Source  SourceConfig  `yaml:"source"`
	Output  OutputConfig  `yaml:"output"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Server  ServerConfig  `yaml:"server"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Audio   AudioConfig   `yaml:"audio"`
}

// ChannelConfig configures the AWGN channel. N0 = 0 bypasses it.
type ChannelConfig struct {
	N0     float64 `yaml:"n0"`
	Seed   uint64  `yaml:"seed"`
	Stream uint64  `yaml:"stream"`
}

// SourceConfig configures speech encoding.
type SourceConfig struct {
	Input string  `yaml:"input"` // WAV file
	Mu    float64 `yaml:"mu"`
	Bits  int     `yaml:"bits"`
}

// OutputConfig controls where artifacts go.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`
}

// SweepConfig configures BER sweeps.
type SweepConfig struct {
	N0      []float64 `yaml:"n0"`
	Symbols int       `yaml:"symbols"`
	Workers int       `yaml:"workers"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig configures report publishing.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// AudioConfig configures waveform rendering and playback.
type AudioConfig struct {
	SampleRate     float64       `yaml:"sample_rate"`
	SymbolDuration time.Duration `yaml:"symbol_duration"`
	CarrierHz      float64       `yaml:"carrier_hz"`
	Amplitude      float64       `yaml:"amplitude"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scheme:    modem.QAM16,
		Amplitude: modem.DefaultAmplitude,
		Channel: ChannelConfig{
			N0:   0.1,
			Seed: 1,
		},
		Source: SourceConfig{
			Mu:   255,
			Bits: 8,
		},
		Output: OutputConfig{
			Dir: "out",
		},
		Sweep: SweepConfig{
			N0:      []float64{1, 0.5, 0.2, 0.1, 0.05, 0.02, 0.01},
			Symbols: 10000,
			Workers: 4,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			Topic:    "stransmision",
			ClientID: "stransmision",
		},
		Audio: AudioConfig{
			SampleRate:     48000,
			SymbolDuration: 20 * time.Millisecond,
			CarrierHz:      2000,
			Amplitude:      0.8,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if !c.Scheme.Valid() {
		errs = append(errs, fmt.Errorf("scheme: %w: %v", modem.ErrUnsupportedScheme, c.Scheme))
	}
	if !positive(c.Amplitude) {
		errs = append(errs, fmt.Errorf("amplitude: %w: %v", modem.ErrInvalidChannelParameter, c.Amplitude))
	}
	if c.Channel.N0 < 0 || math.IsNaN(c.Channel.N0) || math.IsInf(c.Channel.N0, 0) {
		errs = append(errs, fmt.Errorf("channel.n0: %w: %v", modem.ErrInvalidChannelParameter, c.Channel.N0))
	}
	if c.Source.Bits < 1 || c.Source.Bits > 16 {
		errs = append(errs, fmt.Errorf("source.bits: %d outside [1, 16]", c.Source.Bits))
	}
	if c.Source.Mu < 0 {
		errs = append(errs, fmt.Errorf("source.mu: negative %v", c.Source.Mu))
	}
	for i, n0 := range c.Sweep.N0 {
		if !positive(n0) {
			errs = append(errs, fmt.Errorf("sweep.n0[%d]: %w: %v", i, modem.ErrInvalidChannelParameter, n0))
		}
	}
	if c.Sweep.Symbols < 1 {
		errs = append(errs, fmt.Errorf("sweep.symbols: %d", c.Sweep.Symbols))
	}
	if c.Sweep.Workers < 1 {
		errs = append(errs, fmt.Errorf("sweep.workers: %d", c.Sweep.Workers))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker: required when mqtt is enabled"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos: %d", c.MQTT.QoS))
	}
	if !positive(c.Audio.SampleRate) || c.Audio.SymbolDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio: sample rate %v, symbol duration %v", c.Audio.SampleRate, c.Audio.SymbolDuration))
	}
	return errors.Join(errs...)
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
