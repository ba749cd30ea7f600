// Package common provides the wire types, method names and environment
// variables shared by the mogwai daemon and its clients.
package common

// Environment variable names for configuration.
const (
	// SocketPathEnv is the environment variable for custom socket path.
	SocketPathEnv = "MOGWAI_SOCKET_PATH"

	// ConfigFileEnv names the daemon configuration file.
	ConfigFileEnv = "MOGWAI_CONFIG"

	// URLEnv is the daemon's WebSocket endpoint, used instead of the socket.
	URLEnv = "MOGWAI_URL"

	// TokenEnv is the bearer secret sent to URLEnv.
	TokenEnv = "MOGWAI_TOKEN"
)
