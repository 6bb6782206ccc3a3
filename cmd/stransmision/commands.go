package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/manumagallanes/STransmision/internal/analysis"
	"github.com/manumagallanes/STransmision/internal/audio"
	"github.com/manumagallanes/STransmision/internal/channel"
	"github.com/manumagallanes/STransmision/internal/config"
	"github.com/manumagallanes/STransmision/internal/modem"
	"github.com/manumagallanes/STransmision/internal/publish"
	"github.com/manumagallanes/STransmision/internal/server"
	"github.com/manumagallanes/STransmision/internal/sim"
	"github.com/manumagallanes/STransmision/internal/source"
	"github.com/manumagallanes/STransmision/internal/store"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openDir(cfg *config.Config) (*store.Dir, error) {
	return store.Open(cfg.Output.Dir, cfg.Output.Compress)
}

func encodeWAV(cfg *config.Config, path string) (*source.Encoding, error) {
	sig, err := source.ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("Read %d samples at %d Hz from %s", len(sig.Samples), sig.SampleRate, path)
	enc, err := source.Encode(sig.Samples, cfg.Source.Mu, cfg.Source.Bits)
	if err != nil {
		return nil, err
	}
	p0, p1 := enc.Balance()
	log.Printf("Encoded %d codes of %d bits (mu=%g): %.2f%% zeros, %.2f%% ones",
		len(enc.Codes), enc.BitsPerCharacter, enc.Mu, 100*p0, 100*p1)
	return enc, nil
}

func runEncode(args []string) error {
	fs, common := newFlagSet("encode")
	input := fs.StringP("input", "i", "", "WAV file to encode")
	mu := fs.Float64("mu", 255, "mu-law compression parameter (0 disables companding)")
	bits := fs.IntP("bits", "b", 8, "quantization bits per sample")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if fs.Changed("input") {
		cfg.Source.Input = *input
	}
	if fs.Changed("mu") {
		cfg.Source.Mu = *mu
	}
	if fs.Changed("bits") {
		cfg.Source.Bits = *bits
	}
	if cfg.Source.Input == "" {
		return errors.New("no input WAV file (--input)")
	}

	enc, err := encodeWAV(cfg, cfg.Source.Input)
	if err != nil {
		return err
	}
	dir, err := openDir(cfg)
	if err != nil {
		return err
	}
	return dir.SaveEncoding(enc)
}

func runModulate(args []string) error {
	fs, common := newFlagSet("modulate")
	bitsFile := fs.String("bits-file", store.EncodedSignalFile, "bit file inside --dir to modulate")
	random := fs.Int("random", 0, "modulate this many random bits instead of a bit file")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	dir, err := openDir(cfg)
	if err != nil {
		return err
	}

	var bf *store.BitFile
	if *random > 0 {
		bf = &store.BitFile{Bits: sim.RandomBits(*random, cfg.Channel.Seed)}
	} else if bf, err = dir.LoadBits(*bitsFile); err != nil {
		return err
	}

	mod, err := modem.NewModulator(cfg.Scheme, cfg.Amplitude)
	if err != nil {
		return err
	}
	tx, err := mod.ModulateBits(bf.Bits, bf.BitsPerCharacter)
	if err != nil {
		return err
	}
	log.Printf("Modulated %d bits into %d %v symbols (padding %d)", len(bf.Bits), tx.NumSymbols(), tx.Scheme, tx.Padding)
	return dir.SaveTransmission(tx)
}

// loadTransmission rebuilds a transmission from the modulator artifacts.
func loadTransmission(dir *store.Dir, amplitude float64) (*modem.Transmission, store.ModulationMetadata, error) {
	symbols, md, err := dir.LoadTransmission()
	if err != nil {
		return nil, md, err
	}
	tx := &modem.Transmission{
		Scheme:    md.ModulationType,
		Amplitude: amplitude,
		Symbols:   symbols,
		Padding:   md.Padding,
	}
	if md.BitsPerCharacter != nil {
		tx.BitsPerCharacter = *md.BitsPerCharacter
	}
	return tx, md, nil
}

func runChannel(args []string) error {
	fs, common := newFlagSet("channel")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	dir, err := openDir(cfg)
	if err != nil {
		return err
	}
	tx, md, err := loadTransmission(dir, cfg.Amplitude)
	if err != nil {
		return err
	}

	ch, err := channel.NewSeeded(cfg.Channel.N0, cfg.Channel.Seed, cfg.Channel.Stream)
	if err != nil {
		return err
	}
	rx, err := ch.Transmit(tx)
	if err != nil {
		return err
	}
	log.Printf("Eb=%.4f Es=%.4f Eb/N0=%.2f dB Es/N0=%.2f dB, measured noise variance %.4g (N0/2=%.4g)",
		rx.Params.Eb, rx.Params.Es, rx.Params.EbN0dB, rx.Params.EsN0dB, rx.NoiseVariance(), cfg.Channel.N0/2)
	return dir.SaveReception(rx, store.NewChannelInfo(rx, md, cfg.Channel.Seed, cfg.Channel.Stream))
}

func runDemodulate(args []string) error {
	fs, common := newFlagSet("demodulate")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	dir, err := openDir(cfg)
	if err != nil {
		return err
	}
	received, info, err := loadReceived(dir)
	if err != nil {
		return err
	}

	start := time.Now()
	det, err := modem.NewDetector(info.ModulationType, cfg.Amplitude)
	if err != nil {
		return err
	}
	detection, err := det.Detect(received, info.Padding)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	log.Printf("Detected %d %v symbols into %d bits in %v", len(detection.Decisions), detection.Scheme, len(detection.Bits), elapsed)

	dinfo := store.DemodulationInfo{
		ModulationType:        detection.Scheme,
		ConstellationSize:     info.ConstellationSize,
		TotalSymbolsProcessed: len(detection.Decisions),
		PaddingRemoved:        info.Padding,
		BitsPerCharacter:      info.BitsPerCharacter,
		ElapsedSeconds:        elapsed.Seconds(),
	}
	if info.N0 > 0 {
		dinfo.SNRInfo = &info.SNRMetrics
	}
	return dir.SaveDetection(detection, dinfo)
}

// loadReceived returns the channel output, or the modulated matrix when
// the channel was skipped.
func loadReceived(dir *store.Dir) (*mat.Dense, store.ChannelInfo, error) {
	received, info, err := dir.LoadReception()
	if !errors.Is(err, os.ErrNotExist) {
		return received, info, err
	}
	symbols, md, merr := dir.LoadTransmission()
	if merr != nil {
		return nil, info, errors.Join(err, merr)
	}
	log.Printf("No channel output in %s, detecting the noiseless transmission", dir.Path)
	return symbols, store.ChannelInfo{
		ModulationType:    md.ModulationType,
		ConstellationSize: md.ConstellationSize,
		TotalSymbols:      md.TotalSymbols,
		Padding:           md.Padding,
		BitsPerCharacter:  md.BitsPerCharacter,
	}, nil
}

// compareOptions derives the grouping and symbol size for compare from the
// original bit file and, when present, the detection info.
func compareOptions(orig *store.BitFile, info *store.DemodulationInfo, strict bool) analysis.Options {
	opts := analysis.Options{BitsPerCharacter: orig.BitsPerCharacter, Strict: strict}
	if info == nil {
		return opts
	}
	opts.Scheme = info.ModulationType
	if opts.BitsPerCharacter == 0 && info.BitsPerCharacter != nil {
		opts.BitsPerCharacter = *info.BitsPerCharacter
	}
	return opts
}

func runCompare(args []string) error {
	fs, common := newFlagSet("compare")
	original := fs.String("original", store.EncodedSignalFile, "original bit file inside --dir")
	recovered := fs.String("recovered", store.DemodulatedBitsFile, "recovered bit file inside --dir")
	strict := fs.Bool("strict", false, "fail when the streams differ in length")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	dir, err := openDir(cfg)
	if err != nil {
		return err
	}
	orig, err := dir.LoadBits(*original)
	if err != nil {
		return err
	}
	rec, err := dir.LoadBits(*recovered)
	if err != nil {
		return err
	}

	var infoPtr *store.DemodulationInfo
	if info, err := dir.LoadDemodulationInfo(); err == nil {
		infoPtr = &info
	} else {
		log.Printf("No demodulation info, Ps assumes %d bits per symbol: %v", analysis.DefaultSymbolBits, err)
	}

	res, err := analysis.Compare(orig.Bits, rec.Bits, compareOptions(orig, infoPtr, *strict))
	if err != nil {
		return err
	}
	if err := res.WriteText(os.Stdout); err != nil {
		return err
	}
	return dir.SaveReport(res, infoPtr)
}

func runAll(args []string) error {
	fs, common := newFlagSet("run")
	input := fs.StringP("input", "i", "", "WAV file to encode")
	random := fs.Int("random", 0, "send this many random bits instead of speech")
	save := fs.Bool("save", true, "write the stage artifacts to --dir")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if fs.Changed("input") {
		cfg.Source.Input = *input
	}

	var (
		bits []byte
		bpc  int
		enc  *source.Encoding
	)
	switch {
	case *random > 0:
		bits = sim.RandomBits(*random, cfg.Channel.Seed)
	case cfg.Source.Input != "":
		if enc, err = encodeWAV(cfg, cfg.Source.Input); err != nil {
			return err
		}
		bits, bpc = enc.Bits(), enc.BitsPerCharacter
	default:
		return errors.New("nothing to send: give --input or --random")
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := sim.Run(ctx, bits, sim.Options{
		Scheme:           cfg.Scheme,
		Amplitude:        cfg.Amplitude,
		N0:               cfg.Channel.N0,
		Seed:             cfg.Channel.Seed,
		Stream:           cfg.Channel.Stream,
		BitsPerCharacter: bpc,
	})
	if err != nil {
		return err
	}
	log.Printf("Run %s: %s", res.ID, res.Summary())
	if err := res.Analysis.WriteText(os.Stdout); err != nil {
		return err
	}

	if *save {
		if err := saveRun(cfg, res, enc); err != nil {
			return err
		}
	}

	pub, err := publish.New(cfg.MQTT)
	if err != nil {
		return err
	}
	defer pub.Close()
	return pub.Publish(ctx, publish.RunSummary(res))
}

func saveRun(cfg *config.Config, res *sim.Result, enc *source.Encoding) error {
	dir, err := openDir(cfg)
	if err != nil {
		return err
	}
	if enc != nil {
		if err := dir.SaveEncoding(enc); err != nil {
			return err
		}
	}
	// Clears channel artifacts of earlier runs, so a noiseless run leaves
	// none behind.
	if err := dir.SaveTransmission(res.Transmission); err != nil {
		return err
	}
	info := store.DemodulationInfo{
		ModulationType:        res.Scheme,
		ConstellationSize:     res.Scheme.ConstellationSize(),
		TotalSymbolsProcessed: len(res.Detection.Decisions),
		PaddingRemoved:        res.Transmission.Padding,
		BitsPerCharacter:      res.Metadata.BitsPerCharacter,
		ElapsedSeconds:        res.Elapsed.Seconds(),
		SNRInfo:               res.Params,
	}
	if res.Reception != nil {
		chInfo := store.NewChannelInfo(res.Reception, res.Metadata, cfg.Channel.Seed, cfg.Channel.Stream)
		if err := dir.SaveReception(res.Reception, chInfo); err != nil {
			return err
		}
	}
	if err := dir.SaveDetection(res.Detection, info); err != nil {
		return err
	}
	return dir.SaveReport(res.Analysis, &info)
}

func runSweep(args []string) error {
	fs, common := newFlagSet("sweep")
	n0s := fs.Float64Slice("points", nil, "N0 values to measure (default from config)")
	symbols := fs.Int("symbols", 0, "symbols per point (default from config)")
	workers := fs.IntP("workers", "w", 0, "parallel points (default from config)")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	opts := sim.SweepOptions{
		Scheme:    cfg.Scheme,
		Amplitude: cfg.Amplitude,
		N0:        cfg.Sweep.N0,
		Symbols:   cfg.Sweep.Symbols,
		Seed:      cfg.Channel.Seed,
		Workers:   cfg.Sweep.Workers,
	}
	if len(*n0s) > 0 {
		opts.N0 = *n0s
	}
	if *symbols > 0 {
		opts.Symbols = *symbols
	}
	if *workers > 0 {
		opts.Workers = *workers
	}

	pub, err := publish.New(cfg.MQTT)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, cancel := signalContext()
	defer cancel()

	log.Printf("Sweeping %v over %d points, %d symbols each", opts.Scheme, len(opts.N0), opts.Symbols)
	points, err := sim.Sweep(ctx, opts, func(p sim.SweepPoint) {
		log.Printf("N0=%g done: BER %.3e", p.N0, p.BER)
		if err := pub.Publish(ctx, publish.PointSummary(opts.Scheme.String(), p)); err != nil {
			log.Printf("Publish sweep point: %v", err)
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("%-10s %10s %10s %12s %12s\n", "N0", "Eb/N0 dB", "Es/N0 dB", "BER", "SER")
	for _, p := range points {
		fmt.Printf("%-10g %10.2f %10.2f %12.4e %12.4e\n", p.N0, p.EbN0dB, p.EsN0dB, p.BER, p.SER)
	}
	return nil
}

func runServe(args []string) error {
	fs, common := newFlagSet("serve")
	addr := fs.String("addr", "", "listen address (default from config)")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	pub, err := publish.New(cfg.MQTT)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, cancel := signalContext()
	defer cancel()

	metrics := server.NewMetrics()
	handlers := server.NewHandlers(ctx, cfg, metrics, pub)
	srv := server.NewServer(cfg.Server.Addr, handlers, metrics)

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	fmt.Printf("\n  STransmision server running at http://%s\n\n", cfg.Server.Addr)
	return srv.Start()
}

func runPlay(args []string) error {
	fs, common := newFlagSet("play")
	listDevices := fs.Bool("list-devices", false, "list audio output devices and exit")
	rate := fs.Float64("rate", 0, "sample rate in Hz (default from config)")
	symbolMs := fs.Int("symbol-ms", 0, "symbol duration in milliseconds (default from config)")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *rate > 0 {
		cfg.Audio.SampleRate = *rate
	}
	if *symbolMs > 0 {
		cfg.Audio.SymbolDuration = time.Duration(*symbolMs) * time.Millisecond
	}

	if err := audio.Init(); err != nil {
		return fmt.Errorf("initialize PortAudio: %w", err)
	}
	defer audio.Terminate()

	if *listDevices {
		return audio.PrintDevices(os.Stdout)
	}

	dir, err := openDir(cfg)
	if err != nil {
		return err
	}
	tx, _, err := loadTransmission(dir, cfg.Amplitude)
	if err != nil {
		return err
	}

	// The stored matrix is noiseless, so detecting it recovers the points.
	det, err := modem.NewDetector(tx.Scheme, tx.Amplitude)
	if err != nil {
		return err
	}
	detection, err := det.Detect(tx.Symbols, modem.PaddingUnknown)
	if err != nil {
		return err
	}
	points := make([]modem.Point, len(detection.Decisions))
	for i, d := range detection.Decisions {
		points[i] = d.Point
	}

	synth := audio.SynthConfig{
		SampleRate:     cfg.Audio.SampleRate,
		SymbolDuration: cfg.Audio.SymbolDuration,
		CarrierHz:      cfg.Audio.CarrierHz,
		Amplitude:      cfg.Audio.Amplitude,
	}
	wave, err := audio.Synthesize(points, tx.Scheme, synth)
	if err != nil {
		return err
	}
	if err := audio.VerifyTones(wave, points, tx.Scheme, synth); err != nil {
		return err
	}

	player, err := audio.NewPlayer(cfg.Audio.SampleRate)
	if err != nil {
		return err
	}
	defer player.Close()

	ctx, cancel := signalContext()
	defer cancel()

	log.Printf("Playing %d %v symbols (%.1f s)", len(points), tx.Scheme, float64(len(wave))/cfg.Audio.SampleRate)
	return player.Play(ctx, audio.ToFloat32(wave))
}
