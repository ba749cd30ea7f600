package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli"

	"github.com/warpdl/mogwai/cmd/common"
	mcommon "github.com/warpdl/mogwai/common"
	"github.com/warpdl/mogwai/pkg/mogwaicli"
)

func monitor(ctx *cli.Context) error {
	sigCtx, stop := setupShutdownHandler()
	defer stop()

	client, err := connectDaemon(sigCtx, ctx.String("url"), ctx.String("token"))
	if err != nil {
		return common.RuntimeErr("monitor", "new_client", err)
	}
	defer client.Close()

	if err := followScheduler(sigCtx, ctx.App.Writer, client); err != nil && !errors.Is(err, context.Canceled) {
		return common.RuntimeErr("monitor", "listen", err)
	}
	return nil
}

// followScheduler prints the scheduler's properties, then every change,
// until ctx ends or the daemon goes away.
func followScheduler(ctx context.Context, w io.Writer, c *mogwaicli.Client) error {
	c.AddHandler(mcommon.NotifySchedulerChanged, mogwaicli.NewSchedulerHandler(func(p *mcommon.SchedulerProperties) error {
		printProperties(w, p)
		return nil
	}))
	props, err := c.GetProperties(ctx)
	if err != nil {
		return err
	}
	printProperties(w, props)
	return c.Listen(ctx)
}

func printProperties(w io.Writer, p *mcommon.SchedulerProperties) {
	state := "blocked"
	if p.DownloadsAllowed {
		state = "allowed"
	}
	fmt.Fprintf(w, "downloads %s, %d/%d entries, %d active\n",
		state, p.EntryCount, p.MaxEntries, p.ActiveEntryCount)
}
