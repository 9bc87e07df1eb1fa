package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/hostsim"
	"github.com/x1vault/core/internal/menu"
	"github.com/x1vault/core/internal/onboarding"
	"github.com/x1vault/core/internal/settings"
)

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "replay a scripted sequence of UI/USB events against a fresh in-memory device",
	ArgsUsage: "scenario.jsonl",
	Action:    actionDecorator(runScenario),
}

// scenarioEvent is one line of a scenario file: exactly one of the
// optional fields is meaningful, selected by Kind.
type scenarioEvent struct {
	Kind   string `json:"kind"`   // confirm, reject, skip, choice, text, usb
	Choice uint16 `json:"choice"` // for kind == "choice"
	Text   string `json:"text"`   // for kind == "text"
	Tag    uint16 `json:"tag"`    // for kind == "usb"
}

func runScenario(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "run")
	}

	f, err := os.Open(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := flashstore.Open()
	if err != nil {
		return err
	}

	srv, err := hostsim.NewServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	transport, err := hostsim.Dial(srv.Addr())
	if err != nil {
		return err
	}
	defer transport.Close()

	deps := menu.Deps{
		Bus:              eventbus.New(),
		Transport:        transport,
		Store:            store,
		KeyStore:         cardsession.NewMemKeyStore(),
		Tracker:          onboarding.NewTracker(store),
		Settings:         settings.New(store),
		Gate:             menu.NewGate(),
		CardsPairedCount: func() int { return 0 },
	}

	done := make(chan error, 1)
	e := engine.New(deps.Bus, corestatus.NewTracker())
	go func() {
		done <- e.Run(context.Background(), menu.NewRestrictedAppStep(deps))
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var ev scenarioEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return fmt.Errorf("x1vaultctl: bad scenario line %q: %w", line, err)
		}
		postScenarioEvent(deps, ev)
		fmt.Printf("-> %-8s depth=%d onboarding=%d\n", ev.Kind, e.Depth(), deps.Tracker.Current())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	deps.Bus.PostP0(eventbus.P0Event{Kind: eventbus.P0Abort})
	return <-done
}

func postScenarioEvent(deps menu.Deps, ev scenarioEvent) {
	switch ev.Kind {
	case "confirm":
		deps.Bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIConfirm})
	case "reject":
		deps.Bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIReject})
	case "skip":
		deps.Bus.PostUI(eventbus.UIEvent{Kind: eventbus.UISkip})
	case "choice":
		deps.Bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIListChoice, Choice: ev.Choice})
	case "text":
		deps.Bus.PostUI(eventbus.UIEvent{Kind: eventbus.UITextInput, Text: ev.Text})
	case "usb":
		deps.Bus.PostUSB(eventbus.USBEvent{CommandTag: ev.Tag})
	}
}
