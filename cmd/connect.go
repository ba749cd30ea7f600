package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli"

	mcommon "github.com/warpdl/mogwai/common"
	"github.com/warpdl/mogwai/pkg/mogwaicli"
)

var connectFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "url",
		Usage:  "connect to the daemon's WebSocket endpoint (ws://HOST:PORT/jsonrpc/ws) instead of its socket",
		EnvVar: mcommon.URLEnv,
	},
	cli.StringFlag{
		Name:   "token",
		Usage:  "bearer secret for --url",
		EnvVar: mcommon.TokenEnv,
	},
}

var errTokenRequired = errors.New("--token is required with --url")

// connectDaemon dials the WebSocket endpoint when url is set, and the
// local socket otherwise.
func connectDaemon(ctx context.Context, url, token string) (*mogwaicli.Client, error) {
	if url == "" {
		return mogwaicli.NewClient()
	}
	if token == "" {
		return nil, errTokenRequired
	}
	return mogwaicli.DialWebSocket(ctx, url, token)
}
