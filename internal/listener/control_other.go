//go:build !unix

package listener

import "syscall"

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
