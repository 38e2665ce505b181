//go:build windows

package platform

import (
	"os"
)

// Console processes on Windows only see Ctrl+C reliably.
var shutdownSignals = []os.Signal{os.Interrupt}
