package mogwaicli

import (
	"os"
	"path/filepath"

	"github.com/warpdl/mogwai/common"
)

// SocketPath returns the daemon socket path: MOGWAI_SOCKET_PATH, or
// mogwai.sock in the temporary directory.
func SocketPath() string {
	if path := os.Getenv(common.SocketPathEnv); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "mogwai.sock")
}
