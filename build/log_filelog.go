// +build filelog

package build

import "os"

var logf *os.File

// LoggingType is a log type that writes to a file.
const LoggingType = LogTypeStdOut

// Write sends logging output to the single debug log file opened below.
func (w *LogWriter) Write(b []byte) (int, error) {
	return logf.Write(b)
}

// initRotator is a no-op under the filelog tag: this variant writes
// to one fixed file rather than a rotated series, so InitLogRotator's
// logFile/maxRollFiles arguments don't apply.
func initRotator(logFile string, maxRollFiles int) error { return nil }

// closeRotator is a no-op for the same reason; the debug log file
// opened in init() below is closed on process exit.
func closeRotator() error { return nil }

func init() {
	var err error
	logf, err = os.Create("x1vault-debug.log")
	if err != nil {
		panic(err)
	}
}
