//go:build unix

package procio

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// signalName returns the conventional name of sig, e.g. "SIGHUP".
func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}
