// Command x1vaultctl is a bench tool for driving the wallet-core
// engine from a scripted sequence of events instead of real
// peripherals: useful for manual exploration of the end-to-end wallet
// lifecycle (create, restore, verify, delete, sync, unlock) without
// wiring up a UI or real cards.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "x1vaultctl"
	app.Usage = "bench harness for the x1vault wallet-core engine"
	app.Commands = []cli.Command{
		runCommand,
		stateCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "x1vaultctl: %v\n", err)
		os.Exit(1)
	}
}

// actionDecorator wraps a cli action so every command here has a
// uniform (*cli.Context) error signature to register.
func actionDecorator(fn func(*cli.Context) error) func(*cli.Context) error {
	return fn
}
