// Command stransmision simulates a digital speech link: source encoding,
// 8FSK/16QAM/8PSK modulation, an AWGN channel, minimum-distance detection
// and error analysis.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/manumagallanes/STransmision/internal/config"
	"github.com/manumagallanes/STransmision/internal/modem"
)

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"encode", "compand, quantize and encode a WAV file into binary codes", runEncode},
	{"modulate", "map a bit file onto one-hot symbol vectors", runModulate},
	{"channel", "add white Gaussian noise to the modulated signal", runChannel},
	{"demodulate", "detect the received symbols and recover the bits", runDemodulate},
	{"compare", "compare the recovered bits with the originals", runCompare},
	{"run", "run every stage in one go", runAll},
	{"sweep", "measure BER and SER over a range of N0", runSweep},
	{"serve", "start the HTTP and websocket service", runServe},
	{"play", "render the modulated signal as audio and play it", runPlay},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> --help' for the flags of a command.\n", os.Args[0])
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("stransmision: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	for _, c := range commands {
		if c.name == name {
			if err := c.run(os.Args[2:]); err != nil {
				log.Fatalf("%s: %v", name, err)
			}
			return
		}
	}
	if name == "-h" || name == "--help" || name == "help" {
		usage()
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// commonFlags are shared by every subcommand and override the config file.
type commonFlags struct {
	fs *pflag.FlagSet

	configFile string
	scheme     string
	amplitude  float64
	n0         float64
	seed       uint64
	stream     uint64
	dir        string
	compress   bool
}

func newFlagSet(name string) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	c := &commonFlags{fs: fs}
	fs.StringVarP(&c.configFile, "config", "c", "", "YAML configuration file")
	fs.StringVarP(&c.scheme, "scheme", "m", "", "modulation scheme: 8FSK, 16QAM or 8PSK (or 1, 2, 3)")
	fs.Float64VarP(&c.amplitude, "amplitude", "a", modem.DefaultAmplitude, "one-hot amplitude A")
	fs.Float64VarP(&c.n0, "n0", "n", 0, "noise power spectral density N0")
	fs.Uint64Var(&c.seed, "seed", 1, "noise generator seed")
	fs.Uint64Var(&c.stream, "stream", 0, "noise generator stream")
	fs.StringVarP(&c.dir, "dir", "d", "", "artifact directory")
	fs.BoolVar(&c.compress, "compress", false, "zstd-compress matrix artifacts")
	return fs, c
}

// load reads the config file, if any, and applies the flags that were set
// explicitly.
func (c *commonFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if c.configFile != "" {
		var err error
		if cfg, err = config.Load(c.configFile); err != nil {
			return nil, err
		}
	}
	if c.fs.Changed("scheme") {
		s, err := modem.ParseScheme(c.scheme)
		if err != nil {
			return nil, err
		}
		cfg.Scheme = s
	}
	if c.fs.Changed("amplitude") {
		cfg.Amplitude = c.amplitude
	}
	if c.fs.Changed("n0") {
		cfg.Channel.N0 = c.n0
	}
	if c.fs.Changed("seed") {
		cfg.Channel.Seed = c.seed
	}
	if c.fs.Changed("stream") {
		cfg.Channel.Stream = c.stream
	}
	if c.fs.Changed("dir") {
		cfg.Output.Dir = c.dir
	}
	if c.fs.Changed("compress") {
		cfg.Output.Compress = c.compress
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
