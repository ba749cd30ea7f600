package cmd

const DESCRIPTION = `
Mogwai decides which downloads may use the network right now. Clients
register their downloads with the daemon, which admits them according to
the active connections' metered state and policy, the connections'
bandwidth tariffs, and the downloads' priorities.
`

const (
	DaemonDescription = `The daemon command runs the scheduler daemon. It listens on
a Unix socket and exits after a period without clients or
downloads, unless the inactivity timeout is zero.

Settings come from the config file, MOGWAI_* environment
variables and flags, in increasing precedence.

Example:
        mogwai daemon --connections /etc/mogwai/connections.yaml

`
	TariffDescription = `The tariff commands create and inspect tariff files, which
describe how much may be downloaded during recurring periods
of time.

`
	TariffBuildDescription = `The build command writes a tariff file. Each period is five
arguments: START and END as RFC 3339 timestamps, the repeat
type (none, hour, day, week, month, year), the repeat period
and the capacity limit ("unlimited", bytes or a size like 500MiB).

Example:
        mogwai tariff build nights.tariff nights \
            2018-01-01T00:00:00Z 2018-01-01T06:00:00Z day 1 unlimited \
            2018-01-01T06:00:00Z 2018-01-02T00:00:00Z day 1 0

`
	TariffDumpDescription = `The dump command prints a tariff file's name and periods.

Example:
        mogwai tariff dump nights.tariff

`
	TariffLookupDescription = `The lookup command prints the period of a tariff file which
applies at TIME (RFC 3339, or "now"), and the next change.

Example:
        mogwai tariff lookup nights.tariff now

`
	DownloadDescription = `The download command registers a download with the daemon,
waits until it is allowed, and fetches URL into OUTPUT. If the
daemon revokes permission the transfer pauses and resumes when
allowed again.

Example:
        mogwai download --priority 5 https://domain.com/file.zip file.zip

`
	MonitorDescription = `The monitor command prints the scheduler's state and follows
its changes until interrupted.

Example:
        mogwai monitor

`
)

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`
