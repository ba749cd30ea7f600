package connmon

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/warpdl/mogwai/pkg/tariff"
)

type recordingListener struct {
	events []string
}

func (r *recordingListener) ConnectionsChanged(added, removed []string) {
	for _, id := range added {
		r.events = append(r.events, "+"+id)
	}
	for _, id := range removed {
		r.events = append(r.events, "-"+id)
	}
}

func (r *recordingListener) ConnectionDetailsChanged(id string) {
	r.events = append(r.events, "~"+id)
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writeTariff(t *testing.T, fs afero.Fs, path string, capacity uint64) {
	t.Helper()
	p, err := tariff.NewPeriod(
		time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2018, 1, 2, 0, 0, 0, 0, time.UTC),
		tariff.RepeatDay, 1, tariff.WithCapacityLimit(capacity))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := tariff.New("daily", []*tariff.Period{p})
	if err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, path, tariff.Encode(tr), 0o644); err != nil {
		t.Fatal(err)
	}
}

const policyV1 = `
connections:
  - id: wired
    metered: "no"
  - id: mobile
    devices:
      - name: wwan0
        metered: "yes"
    allow-downloads-when-metered: true
    tariff: mobile.tariff
  - id: guest
    allow-downloads: false
`

func TestFileMonitor_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTariff(t, fs, "/etc/mogwai/mobile.tariff", 0)
	writeFile(t, fs, "/etc/mogwai/connections.yaml", policyV1)

	m, err := NewFileMonitor("/etc/mogwai/connections.yaml", &FileOptions{Fs: fs})
	if err != nil {
		t.Fatalf("NewFileMonitor: %v", err)
	}

	ids := m.ConnectionIDs()
	if len(ids) != 3 || ids[0] != "guest" || ids[1] != "mobile" || ids[2] != "wired" {
		t.Fatalf("ConnectionIDs() = %v", ids)
	}

	wired, _ := m.ConnectionDetails("wired")
	if wired.Metered != MeteredNo || !wired.AllowDownloads || wired.Tariff != nil {
		t.Errorf("wired = %+v", wired)
	}
	mobile, _ := m.ConnectionDetails("mobile")
	if mobile.Metered != MeteredYes || !mobile.AllowDownloadsWhenMetered || mobile.Tariff == nil {
		t.Errorf("mobile = %+v", mobile)
	}
	if mobile.Tariff.Periods()[0].CapacityLimit() != 0 {
		t.Errorf("mobile tariff capacity = %d", mobile.Tariff.Periods()[0].CapacityLimit())
	}
	guest, _ := m.ConnectionDetails("guest")
	if guest.Metered != MeteredGuessNo || guest.AllowDownloads {
		t.Errorf("guest = %+v", guest)
	}
	if _, ok := m.ConnectionDetails("missing"); ok {
		t.Error("details for unknown connection")
	}
}

func TestFileMonitor_MissingFile(t *testing.T) {
	m, err := NewFileMonitor("/nowhere.yaml", &FileOptions{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("NewFileMonitor: %v", err)
	}
	if ids := m.ConnectionIDs(); len(ids) != 0 {
		t.Errorf("ConnectionIDs() = %v", ids)
	}
}

func TestFileMonitor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		policy string
	}{
		{"bad yaml", "connections: [\n"},
		{"no id", "connections:\n  - metered: \"no\"\n"},
		{"duplicate", "connections:\n  - id: a\n  - id: a\n"},
		{"bad metered", "connections:\n  - id: a\n    metered: sometimes\n"},
		{"missing tariff", "connections:\n  - id: a\n    tariff: gone.tariff\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/p.yaml", tt.policy)
			if _, err := NewFileMonitor("/p.yaml", &FileOptions{Fs: fs}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFileMonitor_CorruptTariff(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/bad.tariff", "not a tariff")
	writeFile(t, fs, "/p.yaml", "connections:\n  - id: a\n    tariff: bad.tariff\n")
	_, err := NewFileMonitor("/p.yaml", &FileOptions{Fs: fs})
	if !errors.Is(err, tariff.ErrMagic) {
		t.Fatalf("got %v, want ErrMagic", err)
	}
}

func TestFileMonitor_Reload(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTariff(t, fs, "/etc/mogwai/mobile.tariff", 0)
	writeFile(t, fs, "/etc/mogwai/connections.yaml", policyV1)

	m, err := NewFileMonitor("/etc/mogwai/connections.yaml", &FileOptions{Fs: fs})
	if err != nil {
		t.Fatal(err)
	}
	rec := &recordingListener{}
	unsubscribe := m.Subscribe(rec)

	// Unchanged file: nothing to report.
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("events after no-op reload: %v", rec.events)
	}

	// guest removed, office added, mobile's tariff changed, wired unchanged.
	writeTariff(t, fs, "/etc/mogwai/mobile.tariff", 1000)
	writeFile(t, fs, "/etc/mogwai/connections.yaml", `
connections:
  - id: wired
    metered: "no"
  - id: mobile
    devices:
      - name: wwan0
        metered: "yes"
    allow-downloads-when-metered: true
    tariff: mobile.tariff
  - id: office
`)
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	want := []string{"+office", "-guest", "~mobile"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", rec.events, want)
		}
	}

	// A broken file keeps the previous state.
	writeFile(t, fs, "/etc/mogwai/connections.yaml", "connections: [")
	if err := m.Reload(); err == nil {
		t.Fatal("Reload accepted broken file")
	}
	if ids := m.ConnectionIDs(); len(ids) != 3 {
		t.Errorf("state changed after failed reload: %v", ids)
	}

	unsubscribe()
	writeFile(t, fs, "/etc/mogwai/connections.yaml", "connections: []")
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != len(want) {
		t.Errorf("unsubscribed listener received %v", rec.events[len(want):])
	}
}

func TestFileMonitor_Dispatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/p.yaml", "connections: []")

	var queued []func()
	m, err := NewFileMonitor("/p.yaml", &FileOptions{
		Fs:       fs,
		Dispatch: func(fn func()) { queued = append(queued, fn) },
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := &recordingListener{}
	m.Subscribe(rec)

	writeFile(t, fs, "/p.yaml", "connections:\n  - id: a\n")
	if err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 || len(queued) != 1 {
		t.Fatalf("events %v delivered before dispatch (%d queued)", rec.events, len(queued))
	}
	queued[0]()
	if len(rec.events) != 1 || rec.events[0] != "+a" {
		t.Errorf("events = %v", rec.events)
	}
}

func TestFake(t *testing.T) {
	f := NewFake()
	rec := &recordingListener{}
	f.Subscribe(rec)

	f.Set("a", DefaultDetails())
	f.Set("a", Details{Metered: MeteredYes})
	f.Touch("a")
	f.Remove("a")
	f.Remove("a")

	want := []string{"+a", "~a", "~a", "-a"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", rec.events, want)
		}
	}
}

func TestNewStatic(t *testing.T) {
	m := NewStatic("default", DefaultDetails())
	if ids := m.ConnectionIDs(); len(ids) != 1 || ids[0] != "default" {
		t.Fatalf("ConnectionIDs() = %v", ids)
	}
	if d, ok := m.ConnectionDetails("default"); !ok || !d.AllowDownloads {
		t.Fatalf("ConnectionDetails() = %+v, %v", d, ok)
	}
}
