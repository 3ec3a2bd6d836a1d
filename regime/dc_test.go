package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEventsFlatSeries(t *testing.T) {
	assert.Empty(t, DetectEvents(flatBars(30, 100), 0.01))
	assert.Empty(t, DetectEvents(flatBars(1, 100), 0.01))
	assert.Empty(t, DetectEvents(flatBars(30, 100), 0))
}

func TestDetectEventsZigzag(t *testing.T) {
	bars := barsFromCloses([]float64{100, 101, 102, 103, 101, 100, 99, 98, 100, 102})
	events := DetectEvents(bars, 0.015)
	require.Len(t, events, 2)

	up := events[0]
	assert.Equal(t, 1, up.Direction)
	assert.Equal(t, 0, up.StartIndex)
	assert.Equal(t, 3, up.ExtremeIndex)
	assert.Equal(t, 4, up.ConfirmIndex)
	assert.Equal(t, 3, up.Duration)
	assert.InDelta(t, 0.03, up.Return, 1e-12)
	assert.InDelta(t, 0.01, up.TimeAdjustedReturn, 1e-12)

	down := events[1]
	assert.Equal(t, -1, down.Direction)
	assert.Equal(t, 3, down.StartIndex)
	assert.Equal(t, 7, down.ExtremeIndex)
	assert.Equal(t, 8, down.ConfirmIndex)
	assert.Equal(t, 4, down.Duration)
	assert.True(t, down.ExtremeTime.Equal(bars[7].Time))
}

func TestDetectEventsPeakVolume(t *testing.T) {
	bars := barsFromCloses([]float64{100, 101, 102, 103, 101})
	bars[2].Volume = 5000
	events := DetectEvents(bars, 0.015)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].TimeToPeakVolume)
}
