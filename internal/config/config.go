// Package config loads the server configuration from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrylevesque/kdcode/internal/crypto"
	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/geometry"
	"github.com/harrylevesque/kdcode/internal/scan"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

// Environment overrides.
const (
	EnvAddr       = "KDCODE_ADDR"
	EnvSealKeyHex = "KDCODE_SEAL_KEY_HEX"
	EnvLogFile    = "KDCODE_LOG_FILE"
)

// Config is the server configuration.
//
// TODO(config-hot-reload): Reload symbol and scan defaults on SIGHUP; the listener settings stay fixed.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Symbol SymbolConfig `yaml:"symbol"`
	Scan   ScanConfig   `yaml:"scan"`
	Seal   SealConfig   `yaml:"seal"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxImageSide    int           `yaml:"max_image_side"`
}

// SymbolConfig holds the defaults for encode requests that omit a field.
type SymbolConfig struct {
	SegmentsPerRing int    `yaml:"segments_per_ring"`
	AnchorRadius    int    `yaml:"anchor_radius"`
	RingWidth       int    `yaml:"ring_width"`
	ScaleFactor     int    `yaml:"scale_factor"`
	MaxChars        int    `yaml:"max_chars"`
	MaxRings        int    `yaml:"max_rings"`
	Foreground      string `yaml:"foreground"`
	Background      string `yaml:"background"`
	Theme           string `yaml:"theme"`
}

type ScanConfig struct {
	MinAnchorRadius int     `yaml:"min_anchor_radius"`
	MaxAnchorRadius int     `yaml:"max_anchor_radius"`
	MaxDimension    int     `yaml:"max_dimension"`
	MaxPixels       int     `yaml:"max_pixels"`
	Multithreading  bool    `yaml:"multithreading"`
	Workers         int     `yaml:"workers"`
	QueueSize       int     `yaml:"queue_size"`
	FPS             float64 `yaml:"fps"`
}

type SealConfig struct {
	KeyHex string `yaml:"key_hex"`
}

type LogConfig struct {
	File string `yaml:"file"` // empty logs to stdout
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
			MaxImageSide:    4096,
		},
		Symbol: SymbolConfig{
			SegmentsPerRing: symbol.DefaultSegmentsPerRing,
			AnchorRadius:    symbol.DefaultAnchorRadius,
			RingWidth:       symbol.DefaultRingWidth,
			ScaleFactor:     symbol.DefaultScaleFactor,
			MaxChars:        symbol.DefaultMaxChars,
			MaxRings:        symbol.DefaultMaxRings,
			Foreground:      "black",
			Background:      "white",
		},
		Scan: ScanConfig{
			MinAnchorRadius: symbol.DefaultMinAnchorRadius,
			MaxAnchorRadius: symbol.DefaultMaxAnchorRadius,
			MaxDimension:    decoder.DefaultMaxDimension,
			MaxPixels:       decoder.DefaultMaxPixels,
			QueueSize:       1,
			FPS:             scan.DefaultFPS,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvSealKeyHex); v != "" {
		c.Seal.KeyHex = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	s := c.Server
	switch {
	case s.Addr == "":
		return errors.New("config: server.addr is required")
	case s.ReadTimeout <= 0 || s.WriteTimeout <= 0 || s.ShutdownTimeout <= 0:
		return errors.New("config: server timeouts must be positive")
	case s.MaxBodyBytes <= 0:
		return errors.New("config: server.max_body_bytes must be positive")
	case s.MaxImageSide <= 0:
		return errors.New("config: server.max_image_side must be positive")
	}

	spec, err := c.Spec()
	if err != nil {
		return fmt.Errorf("config: symbol: %w", err)
	}
	if err := geometry.CheckCapacity(spec); err != nil {
		return fmt.Errorf("config: symbol: %w", err)
	}
	if err := c.Hint(spec).Validate(); err != nil {
		return fmt.Errorf("config: scan: %w", err)
	}
	if q := c.Scan.QueueSize; q < 1 || q > scan.MaxQueueSize {
		return fmt.Errorf("config: scan.queue_size must be 1..%d", scan.MaxQueueSize)
	}
	if c.Scan.Workers < 0 || c.Scan.FPS < 0 {
		return errors.New("config: scan.workers and scan.fps must not be negative")
	}
	if _, err := c.SealKey(); err != nil {
		return fmt.Errorf("config: seal: %w", err)
	}
	return nil
}

// Spec builds the default symbol spec. A theme overrides both colors.
func (c *Config) Spec() (symbol.Spec, error) {
	sc := c.Symbol
	spec := symbol.Spec{
		SegmentsPerRing: sc.SegmentsPerRing,
		AnchorRadius:    sc.AnchorRadius,
		RingWidth:       sc.RingWidth,
		ScaleFactor:     sc.ScaleFactor,
		MaxChars:        sc.MaxChars,
		MaxRings:        sc.MaxRings,
	}
	var err error
	if spec.Foreground, err = symbol.ParseColor(sc.Foreground); err != nil {
		return spec, err
	}
	if spec.Background, err = symbol.ParseColor(sc.Background); err != nil {
		return spec, err
	}
	if sc.Theme != "" {
		if spec, err = spec.WithTheme(sc.Theme); err != nil {
			return spec, err
		}
	}
	return spec, spec.Validate()
}

// Hint builds the scan hint for spec.
func (c *Config) Hint(spec symbol.Spec) decoder.Hint {
	return decoder.Hint{
		Spec:            spec,
		MinAnchorRadius: c.Scan.MinAnchorRadius,
		MaxAnchorRadius: c.Scan.MaxAnchorRadius,
		MaxDimension:    c.Scan.MaxDimension,
		MaxPixels:       c.Scan.MaxPixels,
	}
}

// ScannerConfig builds the scanner configuration for hint.
func (c *Config) ScannerConfig(hint decoder.Hint) scan.Config {
	return scan.Config{
		Hint:           hint,
		Multithreading: c.Scan.Multithreading,
		Workers:        c.Scan.Workers,
		QueueSize:      c.Scan.QueueSize,
	}
}

// SealKey returns the configured master key, or nil when sealing is off.
func (c *Config) SealKey() ([]byte, error) {
	if c.Seal.KeyHex == "" {
		return nil, nil
	}
	return crypto.ParseKeyHex(c.Seal.KeyHex)
}
