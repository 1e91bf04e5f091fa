package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateWindow(t *testing.T) {
	gate, err := NewGate()
	require.NoError(t, err)

	testCases := []struct {
		hour   int
		minute int
		open   bool
	}{
		{hour: 2, minute: 59, open: false},
		{hour: 3, minute: 0, open: true},
		{hour: 3, minute: 30, open: true},
		{hour: 5, minute: 59, open: true},
		{hour: 6, minute: 0, open: false},
		{hour: 14, minute: 0, open: false},
	}
	for _, tc := range testCases {
		gate.nowFn = func() time.Time {
			return time.Date(2026, 8, 24, tc.hour, tc.minute, 0, 0, gate.loc)
		}
		assert.Equal(t, tc.open, gate.Open(), "%02d:%02d", tc.hour, tc.minute)
	}
}

func TestGateConvertsFromUTC(t *testing.T) {
	gate, err := NewGate()
	require.NoError(t, err)

	// 01:30 UTC in August is 03:30 in Madrid.
	gate.nowFn = func() time.Time {
		return time.Date(2026, 8, 24, 1, 30, 0, 0, time.UTC)
	}
	assert.True(t, gate.Open())

	// 03:30 UTC in August is 05:30 in Madrid, still inside.
	gate.nowFn = func() time.Time {
		return time.Date(2026, 8, 24, 3, 30, 0, 0, time.UTC)
	}
	assert.True(t, gate.Open())

	// 04:30 UTC in August is 06:30 in Madrid, outside.
	gate.nowFn = func() time.Time {
		return time.Date(2026, 8, 24, 4, 30, 0, 0, time.UTC)
	}
	assert.False(t, gate.Open())
}
