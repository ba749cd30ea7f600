package mogwaicli

import (
	"context"
	"fmt"

	"github.com/warpdl/mogwai/common"
)

func invoke[T any](ctx context.Context, c *Client, method string, params any) (*T, error) {
	var d T
	if err := c.rpc.CallResult(ctx, method, params, &d); err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", method, err)
	}
	return &d, nil
}

func (c *Client) GetDaemonVersion(ctx context.Context) (*common.VersionResult, error) {
	return invoke[common.VersionResult](ctx, c, common.MethodGetVersion, nil)
}

// Schedule registers a new entry owned by this connection and returns
// its id. Whether it may download arrives as entry.propertiesChanged.
func (c *Client) Schedule(ctx context.Context, p *common.ScheduleParams) (string, error) {
	if p == nil {
		p = &common.ScheduleParams{}
	}
	res, err := invoke[common.ScheduleResult](ctx, c, common.MethodSchedule, p)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// ScheduleEntries registers several entries at once; either all of them
// are added or none is.
func (c *Client) ScheduleEntries(ctx context.Context, entries []common.ScheduleParams) ([]string, error) {
	res, err := invoke[common.ScheduleEntriesResult](ctx, c, common.MethodScheduleEntries,
		&common.ScheduleEntriesParams{Entries: entries})
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

func (c *Client) GetProperties(ctx context.Context) (*common.SchedulerProperties, error) {
	return invoke[common.SchedulerProperties](ctx, c, common.MethodSchedulerGetProps, nil)
}

func (c *Client) GetEntry(ctx context.Context, id string) (*common.EntryInfo, error) {
	return invoke[common.EntryInfo](ctx, c, common.MethodEntryGet, &common.EntryIDParams{ID: id})
}

func (c *Client) SetEntry(ctx context.Context, p *common.SetEntryParams) (*common.EntryInfo, error) {
	return invoke[common.EntryInfo](ctx, c, common.MethodEntrySet, p)
}

func (c *Client) RemoveEntry(ctx context.Context, id string) error {
	_, err := invoke[common.EmptyResult](ctx, c, common.MethodEntryRemove, &common.EntryIDParams{ID: id})
	return err
}

// Hold keeps the daemon from exiting on inactivity until the returned
// token is released or this connection closes.
func (c *Client) Hold(ctx context.Context, reason string) (string, error) {
	res, err := invoke[common.HoldResult](ctx, c, common.MethodDaemonHold, &common.HoldParams{Reason: reason})
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

func (c *Client) Release(ctx context.Context, token string) error {
	_, err := invoke[common.EmptyResult](ctx, c, common.MethodDaemonRelease, &common.ReleaseParams{Token: token})
	return err
}
