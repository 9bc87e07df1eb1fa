package flashstore

import "github.com/decred/slog"

// log is this package's logger; disabled until UseLogger wires in the
// real one.
var log = slog.Disabled

// UseLogger sets the logger used by this package. Subsystem tag: FLSH.
func UseLogger(logger slog.Logger) {
	log = logger
}
