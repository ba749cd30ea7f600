package cmd

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/warpdl/mogwai/cmd/common"
	mcommon "github.com/warpdl/mogwai/common"
	"github.com/warpdl/mogwai/internal/config"
	"github.com/warpdl/mogwai/pkg/logger"
)

var (
	configFile string

	daemonFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "read settings from a YAML file",
			EnvVar:      mcommon.ConfigFileEnv,
			Destination: &configFile,
		},
		cli.StringFlag{
			Name:  "socket",
			Usage: "listen on this Unix socket",
		},
		cli.StringFlag{
			Name:  "connections",
			Usage: "read the connection policy from this YAML file",
		},
		cli.StringFlag{
			Name:  "http",
			Usage: "serve /metrics and the WebSocket endpoint on this address",
		},
		cli.IntFlag{
			Name:  "max-entries",
			Usage: "maximum number of scheduled downloads",
		},
		cli.IntFlag{
			Name:  "max-active",
			Usage: "maximum number of downloads allowed at once (0 for no limit)",
		},
		cli.DurationFlag{
			Name:  "inactivity-timeout",
			Usage: "exit after this long without clients or downloads (0 to never exit)",
		},
		cli.StringSliceFlag{
			Name:  "privileged",
			Usage: "executable whose downloads go first (repeatable)",
		},
		cli.StringFlag{
			Name:  "log-file",
			Usage: "also append log messages to this file",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "log scheduling decisions",
		},
	}
)

// applyDaemonFlags overrides cfg with the flags set on the command line.
func applyDaemonFlags(ctx *cli.Context, cfg *config.Config) error {
	if ctx.IsSet("socket") {
		cfg.SocketPath = ctx.String("socket")
	}
	if ctx.IsSet("connections") {
		cfg.ConnectionsFile = ctx.String("connections")
	}
	if ctx.IsSet("http") {
		cfg.HTTPAddr = ctx.String("http")
	}
	if ctx.IsSet("max-entries") {
		cfg.MaxEntries = ctx.Int("max-entries")
	}
	if ctx.IsSet("max-active") {
		cfg.MaxActiveEntries = ctx.Int("max-active")
	}
	if ctx.IsSet("inactivity-timeout") {
		cfg.InactivityTimeout = ctx.Duration("inactivity-timeout")
	}
	if ctx.IsSet("privileged") {
		cfg.PrivilegedExecutables = ctx.StringSlice("privileged")
	}
	if ctx.IsSet("log-file") {
		cfg.LogFile = ctx.String("log-file")
	}
	if ctx.IsSet("debug") {
		cfg.Debug = ctx.Bool("debug")
	}
	return cfg.Validate()
}

func daemon(ctx *cli.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return common.RuntimeErr("daemon", "load_config", err)
	}
	if err := applyDaemonFlags(ctx, cfg); err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}

	l, err := daemonLogger(cfg)
	if err != nil {
		return common.RuntimeErr("daemon", "open_log", err)
	}
	defer l.Close()

	sigCtx, stop := setupShutdownHandler()
	defer stop()

	c, err := initDaemonComponents(sigCtx, cfg, l)
	if err != nil {
		return common.RuntimeErr("daemon", "init", err)
	}
	defer c.Close()

	if err := c.Run(sigCtx); err != nil {
		return common.RuntimeErr("daemon", "run", err)
	}
	return nil
}

// daemonLogger logs to stderr and, when configured, to cfg.LogFile too.
func daemonLogger(cfg *config.Config) (logger.Logger, error) {
	stdLog := logger.NewStandardLogger(log.New(os.Stderr, "mogwai: ", log.LstdFlags))
	stdLog.SetDebug(cfg.Debug)
	if cfg.LogFile == "" {
		return stdLog, nil
	}
	fileLog, err := logger.OpenFile(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	fileLog.SetDebug(cfg.Debug)
	return logger.NewMultiLogger(stdLog, fileLog), nil
}
