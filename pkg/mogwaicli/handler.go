package mogwaicli

import (
	"encoding/json"

	"github.com/warpdl/mogwai/common"
)

// Handler defines the interface for processing daemon notifications.
// Implementations receive the raw JSON params and are responsible for
// unmarshaling them.
type Handler interface {
	Handle(json.RawMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(json.RawMessage) error

func (f HandlerFunc) Handle(m json.RawMessage) error { return f(m) }

// NewEntryHandler creates a handler for entry.propertiesChanged. If id is
// not empty only that entry's changes reach callback.
func NewEntryHandler(id string, callback func(*common.EntryInfo) error) *EntryHandler {
	return &EntryHandler{ID: id, Callback: callback}
}

// EntryHandler processes entry.propertiesChanged notifications.
type EntryHandler struct {
	ID       string
	Callback func(*common.EntryInfo) error
}

func (h *EntryHandler) Handle(m json.RawMessage) error {
	var v common.EntryInfo
	if err := json.Unmarshal(m, &v); err != nil {
		return err
	}
	if h.ID != "" && v.ID != h.ID {
		return nil
	}
	return h.Callback(&v)
}

// NewSchedulerHandler creates a handler for scheduler.propertiesChanged.
func NewSchedulerHandler(callback func(*common.SchedulerProperties) error) Handler {
	return HandlerFunc(func(m json.RawMessage) error {
		var v common.SchedulerProperties
		if err := json.Unmarshal(m, &v); err != nil {
			return err
		}
		return callback(&v)
	})
}
