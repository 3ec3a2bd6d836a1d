package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")
	regimesPath := filepath.Join(dir, "regimes.csv")

	j, err := NewCSV(tradesPath, equityPath, regimesPath)
	require.NoError(t, err)

	at := time.Date(2024, 1, 4, 16, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("T1", at, 119.6)))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "run-1", Time: at, Equity: 10119.6, HWM: 10119.6, OpenPositions: 0}))
	require.NoError(t, j.RecordRegime(RegimeRecord{RunID: "run-1", Time: at, Label: "CAUTION", Confluence: 2, Alarm: true}))
	require.NoError(t, j.Close())

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	assert.Equal(t, tradeHeader, trades[0])
	assert.Equal(t, "T1", trades[1][1])
	assert.Equal(t, "2", trades[1][6])
	assert.Equal(t, "-1.250000", trades[1][7])
	assert.Equal(t, "2024-01-04T16:00:00Z", trades[1][10])
	assert.Equal(t, "119.600000", trades[1][12])

	equity := readCSV(t, equityPath)
	require.Len(t, equity, 2)
	assert.Equal(t, equityHeader, equity[0])
	assert.Equal(t, "10119.600000", equity[1][2])

	regimes := readCSV(t, regimesPath)
	require.Len(t, regimes, 2)
	assert.Equal(t, regimeHeader, regimes[0])
	assert.Equal(t, []string{"run-1", "2024-01-04T16:00:00Z", "CAUTION", "0.000000", "2", "true", "false", "0", ""}, regimes[1])
}

func TestCSVJournalSkipsEmptyPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	j, err := NewCSV(tradesPath, "", "")
	require.NoError(t, err)

	assert.NoError(t, j.RecordEquity(EquitySnapshot{Equity: 1}))
	assert.NoError(t, j.RecordRegime(RegimeRecord{Label: "TREND"}))
	require.NoError(t, j.Close())

	assert.Len(t, readCSV(t, tradesPath), 1)
	_, err = os.Stat(filepath.Join(dir, "equity.csv"))
	assert.True(t, os.IsNotExist(err))
}

type countJournal struct{ trades, equity, regimes, closed int }

func (c *countJournal) RecordTrade(TradeRecord) error     { c.trades++; return nil }
func (c *countJournal) RecordEquity(EquitySnapshot) error { c.equity++; return nil }
func (c *countJournal) RecordRegime(RegimeRecord) error   { c.regimes++; return nil }
func (c *countJournal) Close() error                      { c.closed++; return nil }

func TestMultiFansOut(t *testing.T) {
	t.Parallel()
	a, b := &countJournal{}, &countJournal{}
	m := Multi(a, b)
	require.NoError(t, m.RecordTrade(TradeRecord{}))
	require.NoError(t, m.RecordEquity(EquitySnapshot{}))
	require.NoError(t, m.RecordRegime(RegimeRecord{}))
	require.NoError(t, m.Close())
	for _, c := range []*countJournal{a, b} {
		assert.Equal(t, countJournal{1, 1, 1, 1}, *c)
	}
}
