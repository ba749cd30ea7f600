//go:build !linux

package server

import (
	"net"

	"github.com/warpdl/mogwai/internal/peer"
)

// peerSource labels peers by address where process credentials are not
// available.
func peerSource(conn net.Conn) peer.CredentialSource {
	return peer.StaticSource("unix:" + conn.RemoteAddr().String())
}
