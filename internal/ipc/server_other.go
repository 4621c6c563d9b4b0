//go:build !linux

package ipc

import "net"

// VerifyPeerIsCurrentUser relies on the 0600 socket mode where peer
// credentials are unavailable.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) { return true, nil }
