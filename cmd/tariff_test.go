package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func nightsArgs() []string {
	return []string{
		"2018-01-01T00:00:00Z", "2018-01-01T06:00:00Z", "day", "1", "unlimited",
		"2018-01-01T06:00:00Z", "2018-01-02T00:00:00Z", "day", "1", "0",
	}
}

// TestTariffBuildDumpLookup tests the tariff commands against each other
// on an in-memory filesystem.
func TestTariffBuildDumpLookup(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := buildTariff(fs, "/nights.tariff", "nights", nightsArgs()); err != nil {
		t.Fatalf("buildTariff: %v", err)
	}

	var dump strings.Builder
	if err := dumpTariff(&dump, fs, "/nights.tariff"); err != nil {
		t.Fatalf("dumpTariff: %v", err)
	}
	for _, want := range []string{
		"Name: nights",
		"2018-01-01T00:00:00Z to 2018-01-01T06:00:00Z, every 1 day, capacity unlimited",
		"2018-01-01T06:00:00Z to 2018-01-02T00:00:00Z, every 1 day, capacity none",
	} {
		if !strings.Contains(dump.String(), want) {
			t.Errorf("dump missing %q:\n%s", want, dump.String())
		}
	}

	var lookup strings.Builder
	when := time.Date(2018, 3, 5, 3, 0, 0, 0, time.UTC)
	if err := lookupTariff(&lookup, fs, "/nights.tariff", when); err != nil {
		t.Fatalf("lookupTariff: %v", err)
	}
	want := "In effect: 2018-03-05T00:00:00Z to 2018-03-05T06:00:00Z, capacity unlimited\n" +
		"Next change: 2018-03-05T06:00:00Z, capacity none\n"
	if lookup.String() != want {
		t.Fatalf("lookup =\n%s\nwant\n%s", lookup.String(), want)
	}
}

func TestTariffLookup_BeforeFirstPeriod(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := buildTariff(fs, "/t", "once", []string{
		"2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z", "none", "0", "1GiB",
	}); err != nil {
		t.Fatalf("buildTariff: %v", err)
	}
	var out strings.Builder
	if err := lookupTariff(&out, fs, "/t", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("lookupTariff: %v", err)
	}
	want := "In effect: no period\nNext change: 2020-01-01T00:00:00Z, capacity 1.0 GiB\n"
	if out.String() != want {
		t.Fatalf("lookup = %q, want %q", out.String(), want)
	}
}

func TestBuildTariff_Errors(t *testing.T) {
	tests := []struct {
		name   string
		tname  string
		fields []string
		want   string
	}{
		{"incomplete period", "x", []string{"2018-01-01T00:00:00Z"}, "left over"},
		{"bad start", "x", []string{"yesterday", "2018-01-01T06:00:00Z", "none", "0", "0"}, "invalid start"},
		{"bad repeat type", "x", []string{"2018-01-01T00:00:00Z", "2018-01-01T06:00:00Z", "fortnight", "1", "0"}, "unknown repeat type"},
		{"bad capacity", "x", []string{"2018-01-01T00:00:00Z", "2018-01-01T06:00:00Z", "day", "1", "lots"}, "invalid capacity"},
		{"reversed period", "x", []string{"2018-01-01T06:00:00Z", "2018-01-01T00:00:00Z", "none", "0", "0"}, "period 1"},
		{"fractional seconds", "x", []string{"2018-01-01T00:00:00.5Z", "2018-01-01T00:00:00.9Z", "none", "0", "0"}, "period 1"},
		{"no periods", "x", nil, "invalid tariff"},
		{"bad name", "a/b", nightsArgs(), "invalid tariff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			err := buildTariff(fs, "/t", tt.tname, tt.fields)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("buildTariff() error = %v, want containing %q", err, tt.want)
			}
			if ok, _ := afero.Exists(fs, "/t"); ok {
				t.Fatal("file written despite error")
			}
		})
	}
}

func TestDumpTariff_Corrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/t", []byte("not a tariff"), 0644)
	var out strings.Builder
	if err := dumpTariff(&out, fs, "/t"); err == nil || !strings.Contains(err.Error(), "/t") {
		t.Fatalf("dumpTariff() error = %v", err)
	}
	if err := dumpTariff(&out, fs, "/missing"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseWhen(t *testing.T) {
	fixed := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return fixed }
	if got, err := parseWhen("now", now); err != nil || !got.Equal(fixed) {
		t.Fatalf("parseWhen(now) = %v, %v", got, err)
	}
	if got, err := parseWhen("2018-01-01T01:00:00+01:00", now); err != nil || !got.Equal(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("parseWhen(RFC 3339) = %v, %v", got, err)
	}
	if _, err := parseWhen("tomorrow", now); err == nil {
		t.Fatal("expected error")
	}
}
