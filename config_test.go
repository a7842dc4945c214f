/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDisplay(t *testing.T) {
	valid := func() *Config {
		cfg := testConfig()
		cfg.port = 8080

		return cfg
	}

	require.NoError(t, valid().validateDisplay())

	for _, d := range []time.Duration{0, minSessionTimeout, time.Hour} {
		cfg := valid()
		cfg.sessionTimeout = d
		assert.NoError(t, cfg.validateDisplay(), "session timeout %s", d)
	}

	for name, mutate := range map[string]func(*Config){
		"port too low":  func(c *Config) { c.port = 0 },
		"port too high": func(c *Config) { c.port = 70000 },
		"cert only":     func(c *Config) { c.tlsCert = "cert.pem" },
		"key only":      func(c *Config) { c.tlsKey = "key.pem" },
		"empty grid":    func(c *Config) { c.gridSize = 0 },
		"zero rate":     func(c *Config) { c.rateLimit = 0 },
		"zero burst":    func(c *Config) { c.rateBurst = 0 },
		"no app":        func(c *Config) { c.appID = "" },
		"tiny timeout":  func(c *Config) { c.sessionTimeout = time.Nanosecond },
		"below minimum": func(c *Config) { c.sessionTimeout = minSessionTimeout - 1 },
		"negative":      func(c *Config) { c.sessionTimeout = -time.Minute },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.validateDisplay())
		})
	}
}

func TestValidatePlay(t *testing.T) {
	words := []string{"cat", "dog", "sun", "hat"}

	require.NoError(t, testConfig().validatePlay(words))

	for name, mutate := range map[string]func(*Config){
		"no words":          func(c *Config) { c.wordCount = 0 },
		"more than listed":  func(c *Config) { c.wordCount = 5 },
		"no ticks":          func(c *Config) { c.guessTicks = 0 },
		"no tick interval":  func(c *Config) { c.tickInterval = 0 },
		"grid too large":    func(c *Config) { c.gridSize = 1000 },
		"no connect budget": func(c *Config) { c.connectTimeout = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			assert.Error(t, cfg.validatePlay(words))
		})
	}
}

// runDisplay parses args as the display command without starting a server.
func runDisplay(t *testing.T, args ...string) *Config {
	t.Helper()

	cfg := &Config{}
	cmd := newCmd(cfg)

	display, _, err := cmd.Find([]string{"display"})
	require.NoError(t, err)
	display.RunE = func(*cobra.Command, []string) error { return nil }

	cmd.SetArgs(append([]string{"display"}, args...))
	require.NoError(t, cmd.Execute())

	return cfg
}

func TestNewCmd_Defaults(t *testing.T) {
	cfg := runDisplay(t)

	assert.Equal(t, 8080, cfg.port)
	assert.Equal(t, defaultAppID, cfg.appID)
	assert.Equal(t, 60*time.Minute, cfg.sessionTimeout)
	assert.True(t, cfg.announce)
}

func TestNewCmd_Environment(t *testing.T) {
	t.Setenv("DRAWCAST_PORT", "9090")
	t.Setenv("DRAWCAST_SESSION_TIMEOUT", "5m")

	cfg := runDisplay(t, "--bind", "127.0.0.1", "--session_timeout", "2m")

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, "127.0.0.1", cfg.bind)
	assert.Equal(t, 2*time.Minute, cfg.sessionTimeout, "flags win over the environment")
}

func TestNewCmd_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drawcast.env")
	require.NoError(t, os.WriteFile(path, []byte("DRAWCAST_RATE_BURST=7\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("DRAWCAST_RATE_BURST") })

	cfg := runDisplay(t, "--env-file", path)

	assert.Equal(t, 7, cfg.rateBurst)
}

func TestLoadWords(t *testing.T) {
	words, err := loadWords("")
	require.NoError(t, err)
	assert.NotEmpty(t, words)

	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# animals\ncat\n\n  dog \n"), 0o600))

	words, err = loadWords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, words)

	_, err = loadWords(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.5 kB", humanReadableSize(1500))
	assert.Equal(t, "2.0 MB", humanReadableSize(2_000_000))
}
