package marketdata

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

var timeLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "01/02/2006"}

// CSVProvider reads <dir>/<SYMBOL>.csv files.
type CSVProvider struct {
	dir string
}

// NewCSVProvider creates a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

func (p *CSVProvider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]schema.Bar, error) {
	if err := checkRequest(symbol, start, end); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(p.dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return within(bars, start, end), nil
}

// ReadCSV parses bars with a header row naming date/time, open, high, low,
// close and optionally volume columns, in any order. Rows are sorted by time
// and validated.
func ReadCSV(r io.Reader) ([]schema.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(exception.ErrMalformedBar, "missing header")
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["date"]; !ok {
		if i, ok := cols["time"]; ok {
			cols["date"] = i
		}
	}
	for _, name := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := cols[name]; !ok {
			return nil, errors.Wrapf(exception.ErrMalformedBar, "missing column %q", name)
		}
	}

	var bars []schema.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(exception.ErrMalformedBar, "line %d: %v", line, err)
		}
		bar, err := parseRow(rec, cols)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		bars = append(bars, bar)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if err := Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseRow(rec []string, cols map[string]int) (schema.Bar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ts, err := parseTime(field("date"))
	if err != nil {
		return schema.Bar{}, err
	}
	bar := schema.Bar{Time: ts}
	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
	} {
		v, err := decimal.NewFromString(field(f.name))
		if err != nil {
			return schema.Bar{}, errors.Wrapf(exception.ErrMalformedBar, "%s %q", f.name, field(f.name))
		}
		*f.dst = v
	}
	if raw := field("volume"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return schema.Bar{}, errors.Wrapf(exception.ErrMalformedBar, "volume %q", raw)
		}
		bar.Volume = int64(v)
	}
	return bar, nil
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, errors.Wrapf(exception.ErrMalformedBar, "time %q", raw)
}
