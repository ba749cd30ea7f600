package server

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/warpdl/mogwai/internal/peer"
)

// peerSource identifies the process at the other end of conn through
// SO_PEERCRED.
func peerSource(conn net.Conn) peer.CredentialSource {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return peer.StaticSource(conn.RemoteAddr().String())
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return failedSource(err)
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return failedSource(err)
	}
	if credErr != nil {
		return failedSource(fmt.Errorf("SO_PEERCRED: %w", credErr))
	}
	return peer.ProcSource(cred.Pid)
}

func failedSource(err error) peer.CredentialSource {
	return func(context.Context) (string, error) { return "", err }
}
