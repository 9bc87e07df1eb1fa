package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogFilename  = "x1vaultd.log"
	defaultLogDirname   = "logs"
	defaultMaxLogFiles  = 3
	defaultListenAddr   = "127.0.0.1:9735"
)

// config holds every daemon-startup parameter, parsed out of the
// command line (and, if present, a config file) by go-flags.
type config struct {
	DataDir string `long:"datadir" description:"Base directory the log directory is resolved under (the in-memory flash driver keeps no wallet/device state here)"`
	LogDir  string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}" default:"info"`
	MaxLogFiles int `long:"maxlogfiles" description:"Maximum number of rotated log files to keep"`

	// HostSim, when set, starts a loopback websocket server standing
	// in for the four X1 cards' NFC transport, for exercising the
	// daemon without physical hardware.
	HostSim     bool   `long:"hostsim" description:"Serve a simulated card transport instead of requiring real NFC hardware"`
	HostSimAddr string `long:"hostsimaddr" description:"Address the hostsim websocket listener reports; informational only, the listener always binds 127.0.0.1:0"`
}

// defaultConfig returns a config with every default populated, ready
// to be overridden by whatever flags the command line supplies.
func defaultConfig() config {
	return config{
		LogDir:      defaultLogDirname,
		DebugLevel:  "info",
		MaxLogFiles: defaultMaxLogFiles,
	}
}

// loadConfig parses the command line into a config seeded with
// defaults.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	return &cfg, nil
}

func (c *config) logFilePath() string {
	return filepath.Join(c.DataDir, c.LogDir, defaultLogFilename)
}

func (c *config) validate() error {
	if c.MaxLogFiles < 1 {
		return fmt.Errorf("maxlogfiles must be at least 1")
	}
	return nil
}
