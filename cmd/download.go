package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	"github.com/warpdl/mogwai/cmd/common"
	mcommon "github.com/warpdl/mogwai/common"
	"github.com/warpdl/mogwai/pkg/mogwaicli"
)

var (
	priority  uint
	resumable bool

	dlFlags = []cli.Flag{
		cli.UintFlag{
			Name:        "priority, p",
			Usage:       "scheduling priority; higher goes first",
			Destination: &priority,
		},
		cli.BoolFlag{
			Name:        "resumable, r",
			Usage:       "continue an interrupted transfer instead of restarting it",
			Destination: &resumable,
		},
	}
)

// errEntryRemoved is returned when the daemon drops the entry while the
// download is still pending.
var errEntryRemoved = errors.New("download was removed from the scheduler")

func download(ctx *cli.Context) error {
	url := strings.TrimSpace(ctx.Args().Get(0))
	output := ctx.Args().Get(1)
	if url == "" || output == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("a url and an output file are required"))
	}

	sigCtx, stop := setupShutdownHandler()
	defer stop()

	client, err := connectDaemon(sigCtx, ctx.String("url"), ctx.String("token"))
	if err != nil {
		return common.RuntimeErr("download", "new_client", err)
	}
	defer client.Close()
	client.CheckVersionMismatch(sigCtx, os.Stderr, currentBuildArgs.Version)

	prio := uint32(priority)
	job := &downloadJob{
		client:    &http.Client{},
		fs:        appFs,
		url:       url,
		output:    output,
		resumable: resumable,
		progress:  mpb.New(mpb.WithOutput(ctx.App.Writer), mpb.WithWidth(64)),
		out:       ctx.App.Writer,
	}
	err = runScheduled(sigCtx, client, &mcommon.ScheduleParams{
		Priority:  &prio,
		Resumable: &resumable,
	}, job)
	job.progress.Wait()
	if err != nil {
		return common.RuntimeErr("download", "run", err)
	}
	fmt.Fprintf(ctx.App.Writer, "Saved %s\n", output)
	return nil
}

// schedulerClient is the part of the daemon client a scheduled download
// uses.
type schedulerClient interface {
	AddHandler(method string, h mogwaicli.Handler)
	Schedule(ctx context.Context, p *mcommon.ScheduleParams) (string, error)
	GetEntry(ctx context.Context, id string) (*mcommon.EntryInfo, error)
	RemoveEntry(ctx context.Context, id string) error
}

// transfer fetches until done or ctx is cancelled.
type transfer interface {
	fetch(ctx context.Context) error
	notify(format string, args ...any)
}

// runScheduled registers an entry and runs t whenever the daemon allows
// it, cancelling it when permission is revoked. The entry is removed when
// t completes.
func runScheduled(ctx context.Context, c schedulerClient, params *mcommon.ScheduleParams, t transfer) error {
	state := newEntryState()
	c.AddHandler(mcommon.NotifyEntryChanged, mogwaicli.NewEntryHandler("", func(e *mcommon.EntryInfo) error {
		state.set(*e)
		return nil
	}))

	id, err := c.Schedule(ctx, params)
	if err != nil {
		return err
	}
	defer func() { _ = c.RemoveEntry(context.Background(), id) }()

	// A notification may have raced the reply; the daemon's answer is the
	// baseline either way.
	info, err := c.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	state.setIfAbsent(*info)

	for {
		if _, err := state.wait(ctx, id, func(e mcommon.EntryInfo) bool { return e.DownloadNow || e.Removed }); err != nil {
			return err
		}
		if e, _ := state.get(id); e.Removed {
			return errEntryRemoved
		}

		tctx, cancel := context.WithCancel(ctx)
		revoked := make(chan mcommon.EntryInfo, 1)
		go func() {
			e, err := state.wait(tctx, id, func(e mcommon.EntryInfo) bool { return !e.DownloadNow || e.Removed })
			if err == nil {
				revoked <- e
				cancel()
			}
		}()
		err := t.fetch(tctx)
		cancel()
		if err == nil {
			return nil
		}

		select {
		case e := <-revoked:
			if e.Removed {
				return errEntryRemoved
			}
			t.notify("Paused: the scheduler revoked permission to download")
			continue
		default:
		}
		return err
	}
}

// entryState keeps the latest known properties of the entries this client
// scheduled.
type entryState struct {
	mu      sync.Mutex
	entries map[string]mcommon.EntryInfo
	// changed is closed and replaced on every update.
	changed chan struct{}
}

func newEntryState() *entryState {
	return &entryState{
		entries: make(map[string]mcommon.EntryInfo),
		changed: make(chan struct{}),
	}
}

func (s *entryState) set(e mcommon.EntryInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	s.broadcastLocked()
}

func (s *entryState) setIfAbsent(e mcommon.EntryInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		s.entries[e.ID] = e
		s.broadcastLocked()
	}
}

func (s *entryState) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *entryState) get(id string) (mcommon.EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// wait blocks until the entry satisfies cond.
func (s *entryState) wait(ctx context.Context, id string, cond func(mcommon.EntryInfo) bool) (mcommon.EntryInfo, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[id]
		changed := s.changed
		s.mu.Unlock()
		if ok && cond(e) {
			return e, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return mcommon.EntryInfo{}, ctx.Err()
		}
	}
}

// downloadJob fetches url into output over HTTP.
type downloadJob struct {
	client    *http.Client
	fs        afero.Fs
	url       string
	output    string
	resumable bool
	progress  *mpb.Progress
	out       io.Writer
}

func (j *downloadJob) notify(format string, args ...any) {
	fmt.Fprintf(j.out, format+"\n", args...)
}

func (j *downloadJob) fetch(ctx context.Context) error {
	var offset int64
	if j.resumable {
		if fi, err := j.fs.Stat(j.output); err == nil {
			offset = fi.Size()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// Already complete.
		return nil
	case resp.StatusCode == http.StatusOK:
		flags |= os.O_TRUNC
		offset = 0
	default:
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}

	f, err := j.fs.OpenFile(j.output, flags, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	bar := common.InitBar(j.progress, "", total)
	bar.SetCurrent(offset)
	body := bar.ProxyReader(resp.Body)
	defer body.Close()

	if _, err := io.Copy(f, body); err != nil {
		bar.Abort(false)
		return err
	}
	if total < 0 {
		bar.SetTotal(-1, true)
	}
	return nil
}
