package connmon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/warpdl/mogwai/pkg/logger"
	"github.com/warpdl/mogwai/pkg/tariff"
)

// reloadDebounce collapses the burst of events an editor produces when
// saving a file.
const reloadDebounce = 100 * time.Millisecond

// policyFile is the YAML connection policy:
//
//	connections:
//	  - id: home-wifi
//	    metered: guess-no
//	    devices:
//	      - name: wlan0
//	        metered: unknown
//	    allow-downloads: true
//	    allow-downloads-when-metered: false
//	    tariff: tariffs/home.tariff
type policyFile struct {
	Connections []connectionPolicy `yaml:"connections"`
}

type connectionPolicy struct {
	ID string `yaml:"id"`
	// Metered is the connection's own setting; absent means guess-no.
	Metered                   *Metered       `yaml:"metered"`
	Devices                   []devicePolicy `yaml:"devices"`
	AllowDownloads            *bool          `yaml:"allow-downloads"`
	AllowDownloadsWhenMetered bool           `yaml:"allow-downloads-when-metered"`
	Tariff                    string         `yaml:"tariff"`
}

type devicePolicy struct {
	Name    string  `yaml:"name"`
	Metered Metered `yaml:"metered"`
}

// connection is a loaded connectionPolicy.
type connection struct {
	details     Details
	tariffBytes []byte
}

func (c connection) equal(o connection) bool {
	a, b := c.details, o.details
	return a.Metered == b.Metered &&
		a.AllowDownloads == b.AllowDownloads &&
		a.AllowDownloadsWhenMetered == b.AllowDownloadsWhenMetered &&
		bytes.Equal(c.tariffBytes, o.tariffBytes)
}

// FileOptions configures a FileMonitor.
type FileOptions struct {
	// Fs defaults to the OS filesystem.
	Fs     afero.Fs
	Logger logger.Logger
	// Dispatch runs listener notifications; it defaults to calling them
	// directly. The daemon passes the event loop's Post.
	Dispatch func(func())
}

// FileMonitor is a Monitor backed by a YAML policy file which is
// reloaded whenever it changes.
type FileMonitor struct {
	path     string
	fs       afero.Fs
	log      logger.Logger
	dispatch func(func())

	mu        sync.RWMutex
	conns     map[string]connection
	listeners listenerSet
}

var _ Monitor = (*FileMonitor)(nil)

// NewFileMonitor loads path. A missing file is an empty connection set.
func NewFileMonitor(path string, opts *FileOptions) (*FileMonitor, error) {
	if opts == nil {
		opts = &FileOptions{}
	}
	m := &FileMonitor{
		path:     path,
		fs:       opts.Fs,
		log:      logger.OrNop(opts.Logger),
		dispatch: opts.Dispatch,
		conns:    make(map[string]connection),
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.dispatch == nil {
		m.dispatch = func(fn func()) { fn() }
	}
	conns, err := m.load()
	if err != nil {
		return nil, err
	}
	m.conns = conns
	return m, nil
}

func (m *FileMonitor) ConnectionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *FileMonitor) ConnectionDetails(id string) (Details, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c.details, ok
}

func (m *FileMonitor) Subscribe(l Listener) func() {
	return m.listeners.add(l)
}

// Reload re-reads the policy file and notifies listeners of the
// difference. On error the previous state is kept.
func (m *FileMonitor) Reload() error {
	conns, err := m.load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.conns
	m.conns = conns
	m.mu.Unlock()

	var added, removed, changed []string
	for id, c := range conns {
		prev, ok := old[id]
		switch {
		case !ok:
			added = append(added, id)
		case !prev.equal(c):
			changed = append(changed, id)
		}
	}
	for id := range old {
		if _, ok := conns[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)

	if len(added) > 0 || len(removed) > 0 {
		m.log.Debug("connections: added %v, removed %v", added, removed)
		m.dispatch(func() { m.listeners.connectionsChanged(added, removed) })
	}
	for _, id := range changed {
		id := id
		m.log.Debug("connections: details of %q changed", id)
		m.dispatch(func() { m.listeners.connectionDetailsChanged(id) })
	}
	return nil
}

func (m *FileMonitor) load() (map[string]connection, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.log.Warning("connection policy %s not found, assuming no connections", m.path)
		return map[string]connection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading connection policy: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing connection policy %s: %w", m.path, err)
	}

	conns := make(map[string]connection, len(pf.Connections))
	for i, cp := range pf.Connections {
		if cp.ID == "" {
			return nil, fmt.Errorf("connection policy %s: connection %d has no id", m.path, i+1)
		}
		if _, dup := conns[cp.ID]; dup {
			return nil, fmt.Errorf("connection policy %s: duplicate connection %q", m.path, cp.ID)
		}
		c, err := m.resolve(cp)
		if err != nil {
			return nil, fmt.Errorf("connection policy %s: connection %q: %w", m.path, cp.ID, err)
		}
		conns[cp.ID] = c
	}
	return conns, nil
}

func (m *FileMonitor) resolve(cp connectionPolicy) (connection, error) {
	policy := MeteredGuessNo
	if cp.Metered != nil {
		policy = *cp.Metered
	}
	devices := make([]Metered, 0, len(cp.Devices))
	for _, d := range cp.Devices {
		devices = append(devices, d.Metered)
	}

	c := connection{details: DefaultDetails()}
	c.details.Metered = AggregateMetered(policy, devices...)
	c.details.AllowDownloadsWhenMetered = cp.AllowDownloadsWhenMetered
	if cp.AllowDownloads != nil {
		c.details.AllowDownloads = *cp.AllowDownloads
	}

	if cp.Tariff != "" {
		path := cp.Tariff
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(m.path), path)
		}
		data, err := afero.ReadFile(m.fs, path)
		if err != nil {
			return connection{}, fmt.Errorf("reading tariff: %w", err)
		}
		t, err := tariff.Decode(data)
		if err != nil {
			return connection{}, err
		}
		c.details.Tariff = t
		c.tariffBytes = data
	}
	return c, nil
}

// Watch reloads the policy whenever its file changes, until ctx ends. The
// containing directory is watched so that files replaced by rename are
// picked up. It requires the OS filesystem.
func (m *FileMonitor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watching connection policy: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				debounce = time.After(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warning("connection policy watcher: %v", err)
		case <-debounce:
			debounce = nil
			if err := m.Reload(); err != nil {
				m.log.Error("reloading connection policy: %v", err)
			} else {
				m.log.Info("reloaded connection policy %s", m.path)
			}
		}
	}
}
