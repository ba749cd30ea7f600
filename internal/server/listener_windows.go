//go:build windows

package server

import (
	"fmt"
	"net"
	"os"
)

// createListener creates the AF_UNIX socket; Windows 10 and later support
// it. The file's ACL is inherited from its directory.
func (s *Server) createListener() (net.Listener, error) {
	path := s.cfg.SocketPath
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", path, err)
	}
	return l, nil
}
