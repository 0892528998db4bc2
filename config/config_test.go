package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-pianola/score"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.LeadIn != 1000 || opts.Window != 500 || opts.Limits.MinOffOn != 100 || opts.Limits.MaxConcurrent != 10 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.Limits.Policy != score.PolicySteal || opts.Profile.Keys() != 88 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pianola.yaml")
	data := `
transport:
  type: serial
  serial: /dev/ttyUSB0
  baud: 57600
piano:
  lowestNote: 36
  highestNote: 96
  velocityMax: 127
  minOffOn: 80ms
  maxConcurrent: 6
  policy: reject
timing:
  leadIn: 2s
  lookahead: 300ms
  tickRate: 10ms
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	opts, _ := cfg.Options()
	if opts.LeadIn != 2000 || opts.Window != 300 || opts.Limits.Policy != score.PolicyReject || opts.Profile.Low != 36 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unset fields should keep defaults, got log level %q", cfg.Log.Level)
	}
}

func TestLoadJSONPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"timing":{"lookahead":"1s"}}`), 0644)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Timing.Lookahead != "1s" || cfg.Timing.LeadIn != "1s" || cfg.Transport.Type != TransportWebSocket {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.yml"} {
		path := filepath.Join(dir, "nested", name)
		want := DefaultConfig()
		want.Monitor.PortName = "FluidSynth"
		if err := want.SaveFile(path); err != nil {
			t.Fatalf("SaveFile(%s): %v", name, err)
		}
		got, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", name, err)
		}
		if got.Monitor.PortName != "FluidSynth" || got.Piano != want.Piano || got.Timing != want.Timing {
			t.Fatalf("%s: round trip mismatch %+v", name, got)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"bad duration":     func(c *Config) { c.Timing.LeadIn = "soon" },
		"negative delay":   func(c *Config) { c.Piano.MinOffOn = "-5ms" },
		"zero lookahead":   func(c *Config) { c.Timing.Lookahead = "0s" },
		"zero tick":        func(c *Config) { c.Timing.TickRate = "0s" },
		"policy":           func(c *Config) { c.Piano.Policy = "drop-oldest" },
		"range":            func(c *Config) { c.Piano.LowestNote = 110 },
		"transport":        func(c *Config) { c.Transport.Type = "carrier-pigeon" },
		"serial no device": func(c *Config) { c.Transport.Type = TransportSerial },
		"monitor channel":  func(c *Config) { c.Monitor.PortName = "x"; c.Monitor.Channel = 17 },
		"log level":        func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil || !strings.Contains(err.Error(), "nope.json") {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
