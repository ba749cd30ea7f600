package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/warpdl/mogwai/cmd/common"
	"github.com/warpdl/mogwai/pkg/tariff"
)

// appFs is the filesystem tariff files are read from and written to.
var appFs afero.Fs = afero.NewOsFs()

// fieldsPerPeriod is START END REPEAT-TYPE REPEAT-PERIOD CAPACITY-LIMIT.
const fieldsPerPeriod = 5

func tariffBuild(ctx *cli.Context) error {
	args := []string(ctx.Args())
	if len(args) < 2 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("a file and a tariff name are required"))
	}
	if err := buildTariff(appFs, args[0], args[1], args[2:]); err != nil {
		return common.RuntimeErr("tariff", "build", err)
	}
	return nil
}

func tariffDump(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no tariff file provided"))
	}
	if err := dumpTariff(ctx.App.Writer, appFs, path); err != nil {
		return common.RuntimeErr("tariff", "dump", err)
	}
	return nil
}

func tariffLookup(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("a tariff file and a time are required"))
	}
	when, err := parseWhen(ctx.Args().Get(1), time.Now)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	if err := lookupTariff(ctx.App.Writer, appFs, ctx.Args().Get(0), when); err != nil {
		return common.RuntimeErr("tariff", "lookup", err)
	}
	return nil
}

// buildTariff writes the tariff name, with one period per five fields, to
// path.
func buildTariff(fs afero.Fs, path, name string, fields []string) error {
	if len(fields)%fieldsPerPeriod != 0 {
		return fmt.Errorf("each period needs %d arguments, got %d left over",
			fieldsPerPeriod, len(fields)%fieldsPerPeriod)
	}
	b := tariff.NewBuilder()
	b.SetName(name)
	for i := 0; i < len(fields); i += fieldsPerPeriod {
		p, err := parsePeriod(fields[i : i+fieldsPerPeriod])
		if err != nil {
			return fmt.Errorf("period %d: %w", i/fieldsPerPeriod+1, err)
		}
		b.AddPeriod(p)
	}
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}

func parsePeriod(f []string) (*tariff.Period, error) {
	start, err := time.Parse(time.RFC3339, f[0])
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, f[1])
	if err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}
	repeatType, err := tariff.ParseRepeatType(f[2])
	if err != nil {
		return nil, err
	}
	repeatPeriod, err := strconv.ParseUint(f[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid repeat period %q: %w", f[3], err)
	}
	limit, err := common.ParseCapacity(f[4])
	if err != nil {
		return nil, err
	}
	return tariff.NewPeriod(start, end, repeatType, uint32(repeatPeriod), tariff.WithCapacityLimit(limit))
}

func readTariff(fs afero.Fs, path string) (*tariff.Tariff, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	t, err := tariff.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func dumpTariff(w io.Writer, fs afero.Fs, path string) error {
	t, err := readTariff(fs, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Name: %s\n", t.Name())
	fmt.Fprintln(w, "Periods:")
	for i, p := range t.Periods() {
		fmt.Fprintf(w, "%3d. %s\n", i+1, describePeriod(p))
	}
	return nil
}

func lookupTariff(w io.Writer, fs afero.Fs, path string, when time.Time) error {
	t, err := readTariff(fs, path)
	if err != nil {
		return err
	}
	if p := t.LookupPeriod(when); p != nil {
		start, end, _ := p.ContainsTime(when)
		fmt.Fprintf(w, "In effect: %s to %s, capacity %s\n",
			start.Format(time.RFC3339), end.Format(time.RFC3339), common.FormatCapacity(p.CapacityLimit()))
	} else {
		fmt.Fprintln(w, "In effect: no period")
	}
	if next, _, to, ok := t.NextTransition(when); ok {
		capacity := "no period"
		if to != nil {
			capacity = "capacity " + common.FormatCapacity(to.CapacityLimit())
		}
		fmt.Fprintf(w, "Next change: %s, %s\n", next.Format(time.RFC3339), capacity)
	} else {
		fmt.Fprintln(w, "Next change: never")
	}
	return nil
}

func describePeriod(p *tariff.Period) string {
	s := fmt.Sprintf("%s to %s", p.Start().Format(time.RFC3339), p.End().Format(time.RFC3339))
	if p.RepeatType() != tariff.RepeatNone {
		s += fmt.Sprintf(", every %d %s", p.RepeatPeriod(), p.RepeatType())
	}
	return s + ", capacity " + common.FormatCapacity(p.CapacityLimit())
}

func parseWhen(s string, now func() time.Time) (time.Time, error) {
	if s == "now" {
		return now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}
