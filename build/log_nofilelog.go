// +build !filelog

package build

import (
	"os"

	"github.com/jrick/logrotate/rotator"
)

// LoggingType is the log type used by default: stdout plus a rotating
// file once InitLogRotator has run.
const LoggingType = LogTypeDefault

var logRotator *rotator.Rotator

// Write tees logging output to stdout and, once initRotator has run,
// to the rotating log file.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if logRotator != nil {
		logRotator.Write(b)
	}
	return len(b), nil
}

// initRotator opens logFile for rotated writing, rolling up to
// maxRollFiles previous logs out of the way.
func initRotator(logFile string, maxRollFiles int) error {
	r, err := rotator.New(logFile, maxRollFiles)
	if err != nil {
		return err
	}
	logRotator = r
	return nil
}

func closeRotator() error {
	if logRotator == nil {
		return nil
	}
	return logRotator.Close()
}
