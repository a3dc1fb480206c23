//go:build !linux

package core

import (
	"net"
	"time"
)

func tuneConn(conn net.Conn, _ time.Duration) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		return tc.SetNoDelay(true)
	}
	return nil
}
