package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	require.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestAtUsesGivenTime(t *testing.T) {
	ts := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	u, err := ulid.Parse(At(ts))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(ts), u.Time())
}

func TestDeriveIsDeterministic(t *testing.T) {
	ts := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	a := Derive(ts, "SPY", "IRON_CONDOR", "440", "460")
	b := Derive(ts, "SPY", "IRON_CONDOR", "440", "460")
	c := Derive(ts, "SPY", "IRON_CONDOR", "440", "465")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
