package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/kdcode/internal/symbol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	spec, err := cfg.Spec()
	require.NoError(t, err)
	assert.Equal(t, symbol.DefaultSpec(), spec)

	key, err := cfg.SealKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  read_timeout: 5s
symbol:
  segments_per_ring: 32
  theme: dark
scan:
  multithreading: true
  workers: 3
  queue_size: 2
  max_pixels: 1000000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "untouched default")

	spec, err := cfg.Spec()
	require.NoError(t, err)
	assert.Equal(t, 32, spec.SegmentsPerRing)
	assert.Equal(t, uint8(255), spec.Foreground.R, "dark theme draws white on black")

	sc := cfg.ScannerConfig(cfg.Hint(spec))
	assert.True(t, sc.Multithreading)
	assert.Equal(t, 3, sc.Workers)
	assert.Equal(t, 2, sc.QueueSize)
	assert.Equal(t, 32, sc.Hint.Spec.SegmentsPerRing)
	assert.Equal(t, 1000000, sc.Hint.MaxPixels)
}

func TestLoad_EnvOverrides(t *testing.T) {
	key := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	t.Setenv(EnvAddr, ":7000")
	t.Setenv(EnvSealKeyHex, key)
	t.Setenv(EnvLogFile, "/tmp/kdcode.log")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":9000\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/kdcode.log", cfg.Log.File)
	got, err := cfg.SealKey()
	require.NoError(t, err)
	assert.Len(t, got, 32)
	assert.Equal(t, byte(0x1f), got[31])
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"UnknownKey":      "server:\n  port: 80\n",
		"BadSegments":     "symbol:\n  segments_per_ring: 12\n",
		"TooSmall":        "symbol:\n  max_rings: 5\n",
		"BadColor":        "symbol:\n  foreground: \"#12\"\n",
		"SameColors":      "symbol:\n  foreground: red\n  background: red\n",
		"BadTheme":        "symbol:\n  theme: neon\n",
		"AnchorRange":     "scan:\n  min_anchor_radius: 50\n  max_anchor_radius: 40\n",
		"QueueSize":       "scan:\n  queue_size: 3\n",
		"ShortSealKey":    "seal:\n  key_hex: abcd\n",
		"ZeroTimeout":     "server:\n  shutdown_timeout: 0s\n",
		"NegativeWorkers": "scan:\n  workers: -1\n",
		"NegativePixels":  "scan:\n  max_pixels: -1\n",
		"NotYAML":         "server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
