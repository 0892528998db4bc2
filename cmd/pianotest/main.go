package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"go-pianola/config"
	"go-pianola/debug"
	"go-pianola/midi"
	"go-pianola/score"
	"go-pianola/sequencer"
	"go-pianola/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "ports":
		listPorts()
	case "sweep":
		err = sweep(os.Args[2:])
	case "inspect":
		err = inspect(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Instrument Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  ports             - List MIDI outputs and serial ports")
	fmt.Println("  sweep [flags]     - Strike every key once, low to high")
	fmt.Println("  inspect file.mid  - Show what adjustment does to a score")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")
	outs := midi.OutPorts()
	if len(outs) == 0 {
		fmt.Println("  none (built without -tags rtmidi, or the MIDI service is hung)")
	}
	for i, name := range outs {
		fmt.Printf("  %d: %s\n", i, name)
	}

	fmt.Println("\n=== Serial Ports ===")
	ports, err := transport.SerialPorts()
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		return
	}
	for i, name := range ports {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

func sweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	kind := fs.String("transport", "", "websocket, serial or log")
	url := fs.String("url", "", "websocket URL")
	serialPort := fs.String("serial", "", "serial port")
	interval := fs.Duration("interval", 250*time.Millisecond, "time between strikes")
	velocity := fs.Float64("velocity", 0.5, "strike velocity 0..1")
	fs.Parse(args)

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.LoadFile(*cfgPath); err != nil {
			return err
		}
	}
	if *kind != "" {
		cfg.Transport.Type = config.TransportType(*kind)
	}
	if *url != "" {
		cfg.Transport.URL = *url
	}
	if *serialPort != "" {
		cfg.Transport.Serial = *serialPort
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	tickRate, err := cfg.TickRate()
	if err != nil {
		return err
	}
	logger := debug.NewLogger(os.Stderr, log.InfoLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var sink transport.Sink
	switch cfg.Transport.Type {
	case config.TransportWebSocket:
		ws, err := transport.DialWebSocket(ctx, cfg.Transport.URL, cfg.Transport.QueueSize, logger)
		if err != nil {
			return err
		}
		defer ws.Close()
		sink = ws
	case config.TransportSerial:
		s, err := transport.OpenSerial(cfg.Transport.Serial, cfg.Transport.Baud, cfg.Transport.QueueSize, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		sink = s
	default:
		sink = transport.NewLog(logger)
	}

	step := score.FromDuration(*interval)
	var notes []score.RawNote
	for i, p := 0, opts.Profile.Low; p <= opts.Profile.High; i, p = i+1, p+1 {
		notes = append(notes, score.RawNote{
			Pitch:    p,
			Start:    score.Millis(i) * step,
			Duration: step / 2,
			Velocity: *velocity,
		})
	}

	fmt.Printf("Sweeping keys %d-%d every %s...\n", opts.Profile.Low, opts.Profile.High, *interval)
	m := sequencer.NewManager(sink, opts, logger)
	if _, err := m.Load(notes, score.TrackInfo{}); err != nil {
		return err
	}
	if err := m.Run(ctx, tickRate); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !m.Finished() {
		if _, err := m.Pause(); err != nil {
			logger.Warn("pause on exit", "err", err)
		}
	}
	fmt.Println("Done")
	return nil
}

func inspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("inspect needs one .mid file")
	}

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.LoadFile(*cfgPath); err != nil {
			return err
		}
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	logger := debug.NewLogger(os.Stderr, log.WarnLevel)
	file, err := midi.LoadFile(fs.Arg(0), logger)
	if err != nil {
		return err
	}
	fmt.Printf("File:      %s\n", fs.Arg(0))
	fmt.Printf("Tracks:    %d, %d ticks/beat, %.1f bpm\n", file.Info.TrackCount, file.Info.TicksPerBeat, file.Info.Tempo)
	fmt.Printf("Notes:     %d (%d unmatched dropped)\n", len(file.Notes), file.Unmatched)

	s, err := score.Normalize(file.Notes, opts.LeadIn)
	if err != nil {
		return err
	}
	report, err := score.NewAdjuster(opts.Limits, logger).Adjust(s)
	var capErr *score.CapacityError
	if errors.As(err, &capErr) {
		fmt.Printf("\nRejected: more than %d keys down at once\n", capErr.Max)
		for _, o := range capErr.Offenses {
			fmt.Printf("  %8dms  %v\n", o.At, o.Pitches)
		}
		return nil
	}
	if err != nil {
		return err
	}

	unsupported := 0
	for _, n := range s.Notes {
		if !opts.Profile.Supports(n.Pitch) {
			unsupported++
		}
	}
	fmt.Printf("Length:    %s\n", (s.Last() - opts.LeadIn).Duration())
	fmt.Printf("Events:    %d\n", len(s.Events))
	fmt.Printf("Shortened: %d\n", report.Shortened)
	fmt.Printf("Clamped:   %d\n", report.Clamped)
	fmt.Printf("Stolen:    %d\n", report.Stolen)
	fmt.Printf("Off-piano: %d (outside keys %d-%d)\n", unsupported, opts.Profile.Low, opts.Profile.High)
	return nil
}
