package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTradeNotFound(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	_, err := j.GetTrade("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `trade "nope" not found`)
}

func TestListTradesClosedBetween(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		start, end time.Time
		want       []string
	}{
		{"all", base, base.AddDate(0, 0, 10), []string{"A", "B", "C"}},
		{"start inclusive", base.AddDate(0, 0, 1), base.AddDate(0, 0, 10), []string{"B", "C"}},
		{"end exclusive", base, base.AddDate(0, 0, 2), []string{"A", "B"}},
		{"none", base.AddDate(0, 0, 20), base.AddDate(0, 0, 30), nil},
	}

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })
	// inserted out of order
	require.NoError(t, j.RecordTrade(sampleTrade("C", base.AddDate(0, 0, 2), 10)))
	require.NoError(t, j.RecordTrade(sampleTrade("A", base, -5)))
	require.NoError(t, j.RecordTrade(sampleTrade("B", base.AddDate(0, 0, 1), 7)))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := j.ListTradesClosedBetween(tt.start, tt.end)
			require.NoError(t, err)
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.TradeID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
