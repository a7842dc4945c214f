/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/drawcast/grid"
	"github.com/Seednode/drawcast/turn"
)

const (
	defaultAppID      = "drawcast"
	minSessionTimeout = time.Second
)

type Config struct {
	envFile string
	verbose bool

	// display
	announce       bool
	appID          string
	bind           string
	displayName    string
	gridSize       int
	port           int
	prefix         string
	profile        bool
	rateBurst      int
	rateLimit      float64
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string

	// play
	connectTimeout time.Duration
	device         string
	discover       time.Duration
	guessTicks     int
	name           string
	retries        uint64
	secure         bool
	tickInterval   time.Duration
	wordCount      int
	wordsFile      string
}

func (c *Config) validateDisplay() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.gridSize < 1 || c.gridSize > 256 {
		return fmt.Errorf("invalid grid size (must be between 1-256 inclusive): %d", c.gridSize)
	}
	if c.rateLimit <= 0 || c.rateBurst < 1 {
		return fmt.Errorf("invalid rate limit: %v/s with burst %d", c.rateLimit, c.rateBurst)
	}
	if c.appID == "" {
		return errors.New("--app-id must not be empty")
	}
	if c.sessionTimeout < 0 || (c.sessionTimeout > 0 && c.sessionTimeout < minSessionTimeout) {
		return fmt.Errorf("invalid session timeout (must be 0 to disable, or at least %s): %s", minSessionTimeout, c.sessionTimeout)
	}

	return nil
}

func (c *Config) validatePlay(words []string) error {
	if c.wordCount < 1 {
		return fmt.Errorf("invalid word count: %d", c.wordCount)
	}
	if c.wordCount > len(words) {
		return fmt.Errorf("word count %d exceeds the %d words available", c.wordCount, len(words))
	}
	if c.guessTicks < 1 {
		return fmt.Errorf("invalid guess ticks: %d", c.guessTicks)
	}
	if c.tickInterval <= 0 {
		return fmt.Errorf("invalid tick interval: %s", c.tickInterval)
	}
	if c.gridSize < 1 || c.gridSize > 256 {
		return fmt.Errorf("invalid grid size (must be between 1-256 inclusive): %d", c.gridSize)
	}
	if c.connectTimeout <= 0 {
		return fmt.Errorf("invalid connect timeout: %s", c.connectTimeout)
	}
	if c.appID == "" {
		return errors.New("--app-id must not be empty")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}

	return "http"
}

func normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// backfill copies environment values into any flag not set on the
// command line.
func backfill(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DRAWCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "drawcast",
		Short:         "A turn-based drawing and guessing game played from the terminal, shown on a shared display.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.envFile != "" {
				if err := godotenv.Load(cfg.envFile); err != nil {
					return fmt.Errorf("loading %s: %w", cfg.envFile, err)
				}
			}

			backfill(v, cmd.Flags())

			return nil
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.SetNormalizeFunc(normalize)
	pfs.StringVar(&cfg.envFile, "env-file", "", "file of KEY=value pairs to load into the environment (env: DRAWCAST_ENV_FILE)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DRAWCAST_VERBOSE)")
	pfs.StringVar(&cfg.appID, "app-id", defaultAppID, "application to launch on the display (env: DRAWCAST_APP_ID)")
	pfs.IntVar(&cfg.gridSize, "grid-size", grid.DefaultSize, "width and height of the drawing grid (env: DRAWCAST_GRID_SIZE)")

	cmd.AddCommand(newDisplayCmd(cfg), newPlayCmd(cfg))

	// A value for --env-file itself can only come from the environment.
	backfill(v, pfs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("drawcast v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newDisplayCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "display",
		Short: "Run the shared display that controllers connect to.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateDisplay(); err != nil {
				return err
			}

			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalize)

	fs.BoolVar(&cfg.announce, "announce", true, "advertise the display over mDNS (env: DRAWCAST_ANNOUNCE)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DRAWCAST_BIND)")
	fs.StringVar(&cfg.displayName, "display-name", "", "name shown to controllers, defaults to the hostname (env: DRAWCAST_DISPLAY_NAME)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DRAWCAST_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DRAWCAST_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DRAWCAST_PROFILE)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 100, "messages a controller may send in a burst (env: DRAWCAST_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 50, "sustained messages per second accepted from each controller (env: DRAWCAST_RATE_LIMIT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended, 0 to disable (env: DRAWCAST_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DRAWCAST_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DRAWCAST_TLS_KEY)")

	return cmd
}

func newPlayCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a display as a player.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := loadWords(cfg.wordsFile)
			if err != nil {
				return err
			}

			if err := cfg.validatePlay(words); err != nil {
				return err
			}

			return Play(cmd.Context(), cfg, words, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalize)

	fs.DurationVar(&cfg.connectTimeout, "connect-timeout", 10*time.Second, "time allowed for each step of connecting to a display (env: DRAWCAST_CONNECT_TIMEOUT)")
	fs.StringVarP(&cfg.device, "device", "d", "", "address of a display to connect to on startup (env: DRAWCAST_DEVICE)")
	fs.DurationVar(&cfg.discover, "discover", 5*time.Second, "how long to browse for displays over mDNS, 0 to disable (env: DRAWCAST_DISCOVER)")
	fs.IntVar(&cfg.guessTicks, "guess-ticks", turn.DefaultGuessTicks, "countdown ticks a guesser gets each turn (env: DRAWCAST_GUESS_TICKS)")
	fs.StringVarP(&cfg.name, "name", "n", "", "name to join the lobby with (env: DRAWCAST_NAME)")
	fs.Uint64Var(&cfg.retries, "retries", 3, "extra attempts when dialing a display (env: DRAWCAST_RETRIES)")
	fs.BoolVar(&cfg.secure, "secure", false, "connect to displays over wss (env: DRAWCAST_SECURE)")
	fs.DurationVar(&cfg.tickInterval, "tick-interval", turn.DefaultTickInterval, "length of one countdown tick (env: DRAWCAST_TICK_INTERVAL)")
	fs.IntVar(&cfg.wordCount, "word-count", turn.DefaultWordCount, "words offered to guessers each turn (env: DRAWCAST_WORD_COUNT)")
	fs.StringVar(&cfg.wordsFile, "words", "", "file of words to draw, one per line, instead of the built-in list (env: DRAWCAST_WORDS)")

	return cmd
}
