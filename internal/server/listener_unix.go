//go:build !windows

package server

import (
	"fmt"
	"net"
	"os"
)

// createListener creates the Unix socket, replacing a stale socket file.
func (s *Server) createListener() (net.Listener, error) {
	path := s.cfg.SocketPath
	_ = os.Remove(path)
	l, err := net.ListenUnix("unix", &net.UnixAddr{
		Name: path,
		Net:  "unix",
	})
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", path, err)
	}
	setSocketPermissions(path)
	return l, nil
}
