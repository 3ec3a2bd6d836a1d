package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadBarsCSV reads OHLCV rows:
//
//	time,open,high,low,close[,volume]
//
// where time is RFC3339 or YYYY-MM-DD. A header row ("time,...") is allowed
// and empty rows are skipped.
func LoadBarsCSV(path string) (Bars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBarsCSV(f)
}

func ReadBarsCSV(r io.Reader) (Bars, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out Bars
	sawFirst := false
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") || strings.EqualFold(strings.TrimSpace(row[0]), "date") {
				continue
			}
		}
		b, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(out) > 0 && !b.Time.After(out[len(out)-1].Time) {
			return nil, fmt.Errorf("line %d: bars out of order at %s", line, b.Time.Format(time.RFC3339))
		}
		out = append(out, b)
	}
}

func parseBarRow(row []string) (Bar, error) {
	if len(row) < 5 {
		return Bar{}, fmt.Errorf("bad row (need time,open,high,low,close): %v", row)
	}
	t, err := ParseTime(row[0])
	if err != nil {
		return Bar{}, err
	}
	vals := make([]float64, 5)
	for i := 1; i < len(row) && i <= 5; i++ {
		s := strings.TrimSpace(row[i])
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad number %q: %w", row[i], err)
		}
		vals[i-1] = v
	}
	b := Bar{Time: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}
	if b.High < b.Low {
		return Bar{}, fmt.Errorf("high %.4f below low %.4f", b.High, b.Low)
	}
	return b, nil
}

// ParseTime accepts RFC3339, RFC3339Nano or a plain date.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// WriteBarsCSV writes bars in the format LoadBarsCSV reads.
func WriteBarsCSV(w io.Writer, bars Bars) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Time.Format(time.RFC3339),
			f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
