// Package core wires together the wallet-state engine and card-protocol
// layers: the process-wide logger registry lives here, since it's the
// one place that imports every internal/* package SetupLoggers wires a
// logger into.
package core

import (
	"github.com/x1vault/core/build"
	"github.com/x1vault/core/internal/arraylist"
	"github.com/x1vault/core/internal/cardflow"
	"github.com/x1vault/core/internal/cardops"
	"github.com/x1vault/core/internal/cardproto"
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/envelope"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/onboarding"
	"github.com/x1vault/core/internal/pow"
	"github.com/x1vault/core/internal/settings"
	"github.com/x1vault/core/internal/shamir"
	"github.com/x1vault/core/internal/walletflow"

	"github.com/decred/slog"
)

// replaceableLogger is a thin wrapper around a logger that is used so
// the logger can be replaced easily without some black pointer magic.
type replaceableLogger struct {
	slog.Logger
	subsystem string
}

// Loggers can not be used before the log rotator has been initialized
// with a log file. This must be performed early during application
// startup by calling InitLogRotator() on the main log writer instance
// in the config.
var (
	// corePkgLoggers is a list of all core package level loggers that
	// are registered. They are tracked here so they can be replaced
	// once SetupLoggers is called with the final root logger.
	corePkgLoggers []*replaceableLogger

	// addCorePkgLogger is a helper function that creates a new
	// replaceable package level logger and adds it to the list of
	// loggers that are replaced again later, once the final root
	// logger is ready.
	addCorePkgLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    build.NewSubLogger(subsystem, nil),
			subsystem: subsystem,
		}
		corePkgLoggers = append(corePkgLoggers, l)
		return l
	}

	// Loggers that need to be accessible from this package can be
	// placed here. Loggers only used inside a single internal/*
	// package are registered directly via AddSubLogger in
	// SetupLoggers below. We declare all loggers so we never run into
	// a nil reference if they're used early, but SetupLoggers should
	// always be called as soon as possible to finish wiring them to a
	// root logger.
	engnLog = addCorePkgLogger("ENGN")
	evtbLog = addCorePkgLogger("EVTB")
)

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.RotatingLogWriter) {
	for _, l := range corePkgLoggers {
		l.Logger = build.NewSubLogger(l.subsystem, root.GenSubLogger)
		SetSubLogger(root, l.subsystem, l.Logger)
	}

	engine.UseLogger(engnLog)
	eventbus.UseLogger(evtbLog)

	AddSubLogger(root, "ARRL", arraylist.UseLogger)
	AddSubLogger(root, "CRDP", cardproto.UseLogger)
	AddSubLogger(root, "CRDS", cardsession.UseLogger)
	AddSubLogger(root, "CRDO", cardops.UseLogger)
	AddSubLogger(root, "CRDF", cardflow.UseLogger)
	AddSubLogger(root, "CSTS", corestatus.UseLogger)
	AddSubLogger(root, "ENVL", envelope.UseLogger)
	AddSubLogger(root, "FLSH", flashstore.UseLogger)
	AddSubLogger(root, "ONBD", onboarding.UseLogger)
	AddSubLogger(root, "PWOW", pow.UseLogger)
	AddSubLogger(root, "STNG", settings.UseLogger)
	AddSubLogger(root, "SHMR", shamir.UseLogger)
	AddSubLogger(root, "WLTF", walletflow.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register
// the logger of one or more sub systems.
func AddSubLogger(root *build.RotatingLogWriter, subsystem string,
	useLoggers ...func(slog.Logger)) {

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger
// of a sub system.
func SetSubLogger(root *build.RotatingLogWriter, subsystem string,
	logger slog.Logger, useLoggers ...func(slog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
