package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"go-pianola/config"
	"go-pianola/debug"
	"go-pianola/device"
	"go-pianola/midi"
	"go-pianola/sequencer"
	"go-pianola/theme"
	"go-pianola/transport"
	"go-pianola/tui"
)

// Set via -ldflags at release time
var (
	version = "dev"
	commit  = "none"
)

type flags struct {
	config    string
	transport string
	url       string
	serial    string
	monitor   string
	palette   string
	logLevel  string
	headless  bool
	version   bool
}

func parseFlags() (flags, []string) {
	var f flags
	flag.StringVar(&f.config, "config", "", "config file (default ~/.config/go-pianola/config.json)")
	flag.StringVar(&f.transport, "transport", "", "output channel: websocket, serial or log")
	flag.StringVar(&f.url, "url", "", "websocket URL of the instrument")
	flag.StringVar(&f.serial, "serial", "", "serial port of the instrument")
	flag.StringVar(&f.monitor, "monitor", "", "also play to the MIDI output whose name contains this")
	flag.StringVar(&f.palette, "palette", "", "GIMP palette (.gpl) for the UI")
	flag.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	flag.BoolVar(&f.headless, "headless", false, "play without the UI, logging to stderr")
	flag.BoolVar(&f.version, "version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: go-pianola [flags] score.mid\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	return f, flag.Args()
}

func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.config != "" {
		cfg, err = config.LoadFile(f.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if f.transport != "" {
		cfg.Transport.Type = config.TransportType(f.transport)
	}
	if f.url != "" {
		cfg.Transport.URL = f.url
	}
	if f.serial != "" {
		cfg.Transport.Serial = f.serial
		if f.transport == "" {
			cfg.Transport.Type = config.TransportSerial
		}
	}
	if f.monitor != "" {
		cfg.Monitor.PortName = f.monitor
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, cfg.Validate()
}

// output is the assembled channel to the instrument.
type output struct {
	sink      transport.Sink
	telemetry <-chan device.Battery
	closers   []io.Closer
}

func (o *output) Close() {
	for _, c := range o.closers {
		c.Close()
	}
}

func openOutput(ctx context.Context, cfg *config.Config, logger *log.Logger) (*output, error) {
	out := &output{}
	switch cfg.Transport.Type {
	case config.TransportWebSocket:
		ws, err := transport.DialWebSocket(ctx, cfg.Transport.URL, cfg.Transport.QueueSize, logger)
		if err != nil {
			return nil, err
		}
		out.sink = ws
		out.telemetry = ws.Telemetry()
		out.closers = append(out.closers, ws)

	case config.TransportSerial:
		s, err := transport.OpenSerial(cfg.Transport.Serial, cfg.Transport.Baud, cfg.Transport.QueueSize, logger)
		if err != nil {
			return nil, err
		}
		out.sink = s
		out.closers = append(out.closers, s)

	default:
		out.sink = transport.NewLog(logger)
	}
	return out, nil
}

// watchMonitor attaches m to the matching MIDI port whenever it appears and
// forwards the port events to the returned channel.
func watchMonitor(ctx context.Context, m *midi.Monitor, name string, logger *log.Logger) <-chan midi.PortEvent {
	w := midi.NewPortWatcher(name)
	fwd := make(chan midi.PortEvent, 16)
	go w.Run(ctx)
	go func() {
		defer close(fwd)
		for ev := range w.Events() {
			switch ev.Type {
			case midi.PortConnected:
				send, port, err := midi.OpenOut(ev.Name)
				if err != nil {
					logger.Warn("monitor port", "port", ev.Name, "err", err)
					continue
				}
				m.Attach(send)
				logger.Info("monitor attached", "port", port)
			case midi.PortDisconnected:
				m.Detach()
				logger.Info("monitor detached", "port", ev.Name)
			}
			select {
			case fwd <- ev:
			default:
			}
		}
	}()
	return fwd
}

func main() {
	f, args := parseFlags()
	if f.version {
		fmt.Printf("go-pianola %s (%s)\n", version, commit)
		return
	}
	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(f, args[0]); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags, path string) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return errors.Wrap(err, "config")
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}

	var logger *log.Logger
	if f.headless {
		logger = debug.NewLogger(os.Stderr, level)
	} else {
		logPath := cfg.Log.File
		if logPath == "" {
			if logPath, err = debug.DefaultPath(); err != nil {
				return err
			}
		}
		if logger, err = debug.Enable(logPath, level); err != nil {
			return err
		}
		defer debug.Disable()
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	tickRate, err := cfg.TickRate()
	if err != nil {
		return err
	}

	file, err := midi.LoadFile(path, logger)
	if err != nil {
		return err
	}
	logger.Info("score loaded", "path", path, "notes", len(file.Notes), "tempo", file.Info.Tempo, "tracks", file.Info.TrackCount)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out, err := openOutput(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	sink := out.sink
	var ports <-chan midi.PortEvent
	if cfg.Monitor.PortName != "" {
		mon := midi.NewMonitor(opts.Profile, uint8(cfg.Monitor.Channel-1), logger)
		defer mon.Detach()
		ports = watchMonitor(ctx, mon, cfg.Monitor.PortName, logger)
		sink = transport.Tee{out.sink, mon}
	}

	manager := sequencer.NewManager(sink, opts, logger)
	report, err := manager.Load(file.Notes, file.Info)
	if err != nil {
		return err
	}
	logger.Info("score prepared", "shortened", report.Shortened, "stolen", report.Stolen)

	if f.headless {
		start := time.Now()
		if err := manager.Run(ctx, tickRate); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if !manager.Finished() {
			if _, err := manager.Pause(); err != nil {
				logger.Warn("pause on exit", "err", err)
			}
		}
		st, _ := manager.Status()
		logger.Info("playback done", "took", debug.Since(start), "sent", st.Counters.Dispatched,
			"skipped", st.Counters.Unsupported, "dropped", st.Counters.Dropped)
		return nil
	}

	palette, err := theme.LoadOrDefault(f.palette)
	if err != nil {
		return err
	}
	m := tui.NewModel(manager, theme.New(palette), filepath.Base(path), tickRate)
	m.Telemetry = out.telemetry
	m.Ports = ports

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
