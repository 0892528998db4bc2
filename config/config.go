package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go-pianola/device"
	"go-pianola/score"
	"go-pianola/sequencer"
)

// TransportType selects the output channel
type TransportType string

const (
	TransportWebSocket TransportType = "websocket"
	TransportSerial    TransportType = "serial"
	TransportLog       TransportType = "log" // dry run
)

// TransportConfig describes how to reach the instrument
type TransportConfig struct {
	Type      TransportType `json:"type" yaml:"type"`
	URL       string        `json:"url,omitempty" yaml:"url,omitempty"`
	Serial    string        `json:"serial,omitempty" yaml:"serial,omitempty"`
	Baud      int           `json:"baud,omitempty" yaml:"baud,omitempty"`
	QueueSize int           `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`
}

// PianoConfig is the instrument's physical profile
type PianoConfig struct {
	LowestNote    int    `json:"lowestNote" yaml:"lowestNote"`
	HighestNote   int    `json:"highestNote" yaml:"highestNote"`
	VelocityMax   int    `json:"velocityMax" yaml:"velocityMax"`
	MinOffOn      string `json:"minOffOn" yaml:"minOffOn"`
	MaxConcurrent int    `json:"maxConcurrent" yaml:"maxConcurrent"`
	Policy        string `json:"policy" yaml:"policy"`
}

// TimingConfig holds playback timing. Durations are strings like "500ms".
type TimingConfig struct {
	LeadIn    string `json:"leadIn" yaml:"leadIn"`
	Lookahead string `json:"lookahead" yaml:"lookahead"`
	TickRate  string `json:"tickRate" yaml:"tickRate"`
}

// MonitorConfig routes a copy of the stream to a MIDI output
type MonitorConfig struct {
	PortName string `json:"portName,omitempty" yaml:"portName,omitempty"`
	Channel  int    `json:"channel,omitempty" yaml:"channel,omitempty"` // 1-16
}

// LogConfig stores logging preferences
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Piano     PianoConfig     `json:"piano" yaml:"piano"`
	Timing    TimingConfig    `json:"timing" yaml:"timing"`
	Monitor   MonitorConfig   `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	Log       LogConfig       `json:"log,omitempty" yaml:"log,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Type: TransportWebSocket,
			URL:  "ws://pianola.local/ws",
			Baud: 115200,
		},
		Piano: PianoConfig{
			LowestNote:    21,
			HighestNote:   108,
			VelocityMax:   255,
			MinOffOn:      "100ms",
			MaxConcurrent: 10,
			Policy:        string(score.PolicySteal),
		},
		Timing: TimingConfig{
			LeadIn:    "1s",
			Lookahead: "500ms",
			TickRate:  "16ms",
		},
		Monitor: MonitorConfig{Channel: 1},
		Log:     LogConfig{Level: "info"},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-pianola"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	cfg, err := LoadFile(path)
	if os.IsNotExist(errors.Cause(err)) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// LoadFile reads path on top of the defaults. Files ending in .yaml or .yml
// are YAML, anything else JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, YAML or JSON by extension.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Options converts the config into sequencer options.
func (c *Config) Options() (sequencer.Options, error) {
	var opts sequencer.Options
	var err error

	if opts.LeadIn, err = millis("timing.leadIn", c.Timing.LeadIn); err != nil {
		return opts, err
	}
	if opts.Window, err = millis("timing.lookahead", c.Timing.Lookahead); err != nil {
		return opts, err
	}
	if opts.Limits.MinOffOn, err = millis("piano.minOffOn", c.Piano.MinOffOn); err != nil {
		return opts, err
	}
	opts.Limits.MaxConcurrent = c.Piano.MaxConcurrent
	opts.Limits.Policy = score.Policy(c.Piano.Policy)
	opts.Profile = device.Profile{
		Low:         c.Piano.LowestNote,
		High:        c.Piano.HighestNote,
		VelocityMax: c.Piano.VelocityMax,
	}
	return opts, nil
}

// TickRate returns the host loop interval.
func (c *Config) TickRate() (time.Duration, error) {
	return duration("timing.tickRate", c.Timing.TickRate)
}

// Level returns the configured log level (info if unset).
func (c *Config) Level() (log.Level, error) {
	if c.Log.Level == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel, errors.Wrap(err, "log.level")
	}
	return lvl, nil
}

// Validate checks every field that would otherwise fail at playback time.
func (c *Config) Validate() error {
	opts, err := c.Options()
	if err != nil {
		return err
	}
	if opts.Window <= 0 {
		return errors.New("timing.lookahead must be positive")
	}
	if err := opts.Profile.Validate(); err != nil {
		return errors.Wrap(err, "piano")
	}
	if opts.Limits.MaxConcurrent < 0 {
		return errors.Errorf("piano.maxConcurrent must not be negative, got %d", opts.Limits.MaxConcurrent)
	}
	switch opts.Limits.Policy {
	case score.PolicySteal, score.PolicyReject, "":
	default:
		return errors.Errorf("piano.policy must be %q or %q, got %q", score.PolicySteal, score.PolicyReject, opts.Limits.Policy)
	}

	tick, err := c.TickRate()
	if err != nil {
		return err
	}
	if tick <= 0 {
		return errors.New("timing.tickRate must be positive")
	}

	switch c.Transport.Type {
	case TransportWebSocket:
		if c.Transport.URL == "" {
			return errors.New("transport.url is required for websocket")
		}
	case TransportSerial:
		if c.Transport.Serial == "" || c.Transport.Baud <= 0 {
			return errors.New("transport.serial and transport.baud are required for serial")
		}
	case TransportLog:
	default:
		return errors.Errorf("unknown transport %q", c.Transport.Type)
	}

	if c.Monitor.PortName != "" && (c.Monitor.Channel < 1 || c.Monitor.Channel > 16) {
		return errors.Errorf("monitor.channel must be 1-16, got %d", c.Monitor.Channel)
	}
	_, err = c.Level()
	return err
}

func duration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrap(err, field)
	}
	return d, nil
}

func millis(field, s string) (score.Millis, error) {
	d, err := duration(field, s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.Errorf("%s must not be negative, got %s", field, s)
	}
	return score.FromDuration(d), nil
}
