//go:build windows

package ipconnection

import "net"

// isReallyConnected has no cheap non-consuming peek on Windows without
// additional syscalls this module does not otherwise need; a freshly dialed
// socket is treated as connected and left to the reader goroutine and the
// keepalive poll to notice a half-open peer.
func isReallyConnected(conn net.Conn) bool {
	return true
}
