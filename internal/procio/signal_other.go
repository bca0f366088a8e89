//go:build !unix

package procio

import "syscall"

func signalName(sig syscall.Signal) string {
	return sig.String()
}
