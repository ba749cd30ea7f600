// Package common provides shared helpers for the mogwai CLI commands:
// progress bars, error and help printing, and capacity formatting.
package common

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/warpdl/mogwai/pkg/tariff"
)

// VersionCmdStr holds the formatted version string displayed by the version command.
// It is populated at runtime by the Execute function with build-time information.
var VersionCmdStr string

var (
	showAppHelpAndExit = cli.ShowAppHelpAndExit
	showCommandHelp    = cli.ShowCommandHelp

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// InitBar creates a download progress bar. A total of zero or less means
// the size is unknown; the bar then completes when the caller sets it.
func InitBar(p *mpb.Progress, prefix string, total int64) *mpb.Bar {
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	name := prefix + "Downloading"

	bar := p.New(0,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WC{W: 4}), "Complete",
			),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
	if total > 0 {
		bar.SetTotal(total, false)
		bar.EnableTriggerComplete()
	}
	return bar
}

// FormatCapacity renders a period capacity limit for humans.
func FormatCapacity(limit uint64) string {
	switch limit {
	case tariff.CapacityUnlimited:
		return "unlimited"
	case 0:
		return "none"
	}
	return humanize.IBytes(limit)
}

// ParseCapacity parses "unlimited", a byte count or a size such as
// "500MiB" into a capacity limit.
func ParseCapacity(s string) (uint64, error) {
	if strings.EqualFold(s, "unlimited") {
		return tariff.CapacityUnlimited, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid capacity limit %q: %w", s, err)
	}
	return n, nil
}

// Help shows the application help, or the help of the command named by
// the first argument.
func Help(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg != "" && arg != "help" {
		return showCommandHelp(ctx, arg)
	}
	fmt.Fprintf(stdout, "%s %s\n", ctx.App.Name, ctx.App.Version)
	showAppHelpAndExit(ctx, 0)
	return nil
}

// GetVersion prints VersionCmdStr.
func GetVersion(*cli.Context) error {
	fmt.Fprintln(stdout, VersionCmdStr)
	return nil
}

// RuntimeErr wraps a failed action of cmd. App.Run returns it and main
// prints it once and exits with status 1.
func RuntimeErr(cmd, action string, err error) error {
	return fmt.Errorf("%s[%s]: %w", cmd, action, err)
}

// PrintErrWithCmdHelp prints err followed by the current command's help.
func PrintErrWithCmdHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(ctx, err, func() {
		if herr := showCommandHelp(ctx, ctx.Command.Name); herr != nil {
			fmt.Fprintln(stderr, herr)
		}
	})
}

// PrintErrWithHelp prints err followed by the application help and exits
// with status 1.
func PrintErrWithHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(ctx, err, func() {
		showAppHelpAndExit(ctx, 1)
	})
}

func printErrWithCallback(ctx *cli.Context, err error, callback func()) error {
	switch {
	case err == nil:
		return nil
	case helpRequested(err):
		return Help(ctx)
	case versionRequested(err):
		return GetVersion(ctx)
	}
	fmt.Fprintf(stderr, "%s: %v\n\n", ctx.App.HelpName, err)
	callback()
	return nil
}

func helpRequested(err error) bool {
	return errors.Is(err, flag.ErrHelp) || strings.EqualFold(err.Error(), flag.ErrHelp.Error())
}

// versionRequested matches the flag package's complaint about an unknown
// -v or -version flag on a subcommand.
func versionRequested(err error) bool {
	msg := err.Error()
	for _, f := range []string{" -v", " -version", " --version"} {
		if strings.HasSuffix(msg, f) {
			return true
		}
	}
	return false
}

// UsageErrorCallback is the OnUsageError hook for the app and its commands.
func UsageErrorCallback(ctx *cli.Context, err error, _ bool) error {
	if ctx.Command.Name == "" {
		return PrintErrWithHelp(ctx, err)
	}
	return PrintErrWithCmdHelp(ctx, err)
}
