package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/warpdl/mogwai/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "mogwai",
		HelpName:              "mogwai",
		Usage:                 "A download scheduler.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "mogwai <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:               "daemon",
				Usage:              "runs the scheduler daemon",
				Action:             daemon,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        DaemonDescription,
				Flags:              daemonFlags,
			},
			{
				Name:        "tariff",
				Aliases:     []string{"t"},
				Usage:       "builds and inspects tariff files",
				Description: TariffDescription,
				Subcommands: []cli.Command{
					{
						Name:               "build",
						Usage:              "writes a tariff file",
						UsageText:          "FILE NAME [START END REPEAT-TYPE REPEAT-PERIOD CAPACITY-LIMIT]...",
						Action:             tariffBuild,
						OnUsageError:       common.UsageErrorCallback,
						CustomHelpTemplate: CMD_HELP_TEMPL,
						Description:        TariffBuildDescription,
					},
					{
						Name:               "dump",
						Usage:              "prints a tariff file",
						UsageText:          "FILE",
						Action:             tariffDump,
						OnUsageError:       common.UsageErrorCallback,
						CustomHelpTemplate: CMD_HELP_TEMPL,
						Description:        TariffDumpDescription,
					},
					{
						Name:               "lookup",
						Usage:              "prints the period in force at a time",
						UsageText:          "FILE TIME",
						Action:             tariffLookup,
						OnUsageError:       common.UsageErrorCallback,
						CustomHelpTemplate: CMD_HELP_TEMPL,
						Description:        TariffLookupDescription,
					},
				},
			},
			{
				Name:                   "download",
				Aliases:                []string{"d"},
				Usage:                  "downloads a file when the scheduler allows it",
				UsageText:              "[--priority N] [--resumable] [--url WS-URL --token SECRET] URL OUTPUT",
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 download,
				Flags:                  append(dlFlags, connectFlags...),
				UseShortOptionHandling: true,
				Description:            DownloadDescription,
			},
			{
				Name:               "monitor",
				Aliases:            []string{"m"},
				Usage:              "follows the scheduler state",
				Action:             monitor,
				Flags:              connectFlags,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        MonitorDescription,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of mogwai",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:      common.Help,
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
