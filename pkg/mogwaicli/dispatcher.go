package mogwaicli

import (
	"encoding/json"
	"sync"

	"github.com/creachadair/jrpc2"
)

// Dispatcher routes push notifications to the handlers registered for
// their method. Notifications without a handler are dropped.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	// errc holds the first handler failure.
	errc chan error
}

func newDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		errc:     make(chan error, 1),
	}
}

func (d *Dispatcher) AddHandler(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = append(d.handlers[method], h)
}

func (d *Dispatcher) process(req *jrpc2.Request) {
	d.mu.RLock()
	handlers := d.handlers[req.Method()]
	d.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}
	var raw json.RawMessage
	if err := req.UnmarshalParams(&raw); err != nil {
		d.fail(err)
		return
	}
	for _, h := range handlers {
		if err := h.Handle(raw); err != nil {
			d.fail(err)
			return
		}
	}
}

func (d *Dispatcher) fail(err error) {
	select {
	case d.errc <- err:
	default:
	}
}
