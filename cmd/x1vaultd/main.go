// Command x1vaultd is the wallet-core daemon: it owns the flash-backed
// wallet registry, the card/host protocol stacks, and the menu-driven
// step engine that ties them together. On real hardware this binary's
// Run loop is what the device's firmware calls into directly; here it
// runs as an ordinary OS process against the in-memory flash driver
// and, optionally, a simulated card transport.
package main

import (
	"context"
	"fmt"
	"os"

	core "github.com/x1vault/core"
	"github.com/x1vault/core/build"
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/hostsim"
	"github.com/x1vault/core/internal/menu"
	"github.com/x1vault/core/internal/onboarding"
	"github.com/x1vault/core/internal/settings"

	"github.com/go-errors/errors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, 0).ErrorStack())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	logWriter := build.NewRotatingLogWriter()
	if err := logWriter.InitLogRotator(cfg.logFilePath(), cfg.MaxLogFiles); err != nil {
		return fmt.Errorf("x1vaultd: init log rotator: %w", err)
	}
	defer logWriter.Close()
	core.SetupLoggers(logWriter)

	store, err := flashstore.Open()
	if err != nil {
		return fmt.Errorf("x1vaultd: open flash store: %w", err)
	}

	transport, cleanup, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	deps := menu.Deps{
		Bus:       eventbus.New(),
		Transport: transport,
		Store:     store,
		KeyStore:  cardsession.NewMemKeyStore(),
		Tracker:   onboarding.NewTracker(store),
		Settings:  settings.New(store),
		Gate:      menu.NewGate(),
		CardsPairedCount: func() int {
			return countPairedCards(store)
		},
	}

	statusTracker := corestatus.NewTracker()
	ctx := context.Background()

	// The menu stack can unwind to empty (e.g. a factory reset's
	// engine.Abort), at which point the driver just restarts from the
	// restricted-app gate, the same re-entry point a fresh boot uses.
	for {
		e := engine.New(deps.Bus, statusTracker)
		if err := e.Run(ctx, menu.NewRestrictedAppStep(deps)); err != nil {
			return fmt.Errorf("x1vaultd: engine run: %w", err)
		}
	}
}

// countPairedCards reports how many of the four card slots currently
// have a live share of at least one wallet; a freshly onboarded device
// with no wallets yet reports 0 regardless of how many cards have
// physically been tapped; wallet creation's own
// CardsPairedCount precondition is checked against pairing state
// tracked by the card session layer, not wallet content, in a full
// deployment. Here, with no wallets yet to read a mask from, the
// daemon cannot distinguish "no cards paired" from "no wallets exist
// yet" and conservatively reports 0 until the first wallet exists.
func countPairedCards(store *flashstore.Store) int {
	headers := store.List()
	if len(headers) == 0 {
		return 0
	}
	var mask uint8
	for _, h := range headers {
		mask |= h.CardsStates
	}
	count := 0
	for x := uint8(0); x < 4; x++ {
		if mask&(1<<x) != 0 {
			count++
		}
	}
	return count
}

// buildTransport wires the card transport: a real NFC reader driver on
// hardware, or a loopback hostsim.Server/Client pair when --hostsim is
// set for development without a physical card.
func buildTransport(cfg *config) (cardsession.Transport, func(), error) {
	if !cfg.HostSim {
		return nil, nil, fmt.Errorf("x1vaultd: no NFC transport driver wired for this build; pass --hostsim for a simulated transport")
	}

	srv, err := hostsim.NewServer()
	if err != nil {
		return nil, nil, fmt.Errorf("x1vaultd: start hostsim server: %w", err)
	}

	client, err := hostsim.Dial(srv.Addr())
	if err != nil {
		srv.Close()
		return nil, nil, fmt.Errorf("x1vaultd: dial hostsim server: %w", err)
	}

	cleanup := func() {
		client.Close()
		srv.Close()
	}
	return client, cleanup, nil
}
