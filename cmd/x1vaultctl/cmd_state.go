package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/onboarding"
	"github.com/x1vault/core/internal/settings"
)

var stateCommand = cli.Command{
	Name:  "state",
	Usage: "print the factory-default onboarding/settings state a fresh device starts in",
	Action: actionDecorator(func(ctx *cli.Context) error {
		store, err := flashstore.Open()
		if err != nil {
			return err
		}

		tracker := onboarding.NewTracker(store)
		cfg := settings.New(store)

		fmt.Printf("onboarding step: %d (virgin=%v)\n", tracker.Current(), tracker.Current() == onboarding.Virgin)
		fmt.Printf("wallets: %d/%d\n", len(store.List()), flashstore.MaxWallets)
		fmt.Printf("log export:       %v\n", cfg.Get(settings.FlagLogExport))
		fmt.Printf("passphrase:       %v\n", cfg.Get(settings.FlagPassphrase))
		fmt.Printf("raw calldata:     %v\n", cfg.Get(settings.FlagRawCalldata))
		fmt.Printf("display rotation: %v\n", cfg.Get(settings.FlagDisplayRotation))
		return nil
	}),
}
