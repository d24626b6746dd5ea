package schedule_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/schedule"
)

func TestFromConfig(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cfg := map[string]any{
		"delay_seconds":    30.0,
		"interval_seconds": 60.0,
		"max_occurrences":  5.0,
		"until":            "2026-09-01T00:00:00",
		"context":          map[string]any{"source": "nightly"},
	}

	s := schedule.FromConfig(7, cfg, now)
	assert.EqualValues(t, 7, s.WorkflowID)
	assert.Equal(t, now.Add(30*time.Second), s.NextRun)
	assert.EqualValues(t, 60, s.IntervalSeconds)
	assert.Equal(t, 5, s.MaxOccurrences)
	assert.Equal(t, "2026-09-01T00:00:00", s.Until)
	assert.Equal(t, map[string]any{"source": "nightly"}, s.Context)
}

func TestFromConfigDefaults(t *testing.T) {
	now := time.Now().UTC()
	s := schedule.FromConfig(7, map[string]any{}, now)
	assert.Equal(t, now, s.NextRun, "no delay fires immediately")
	assert.Zero(t, s.IntervalSeconds)
	assert.Zero(t, s.MaxOccurrences)
}

func TestFiredTermination(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("one-shot always retires", func(t *testing.T) {
		s := &schedule.Schedule{WorkflowID: 1, NextRun: now}
		assert.True(t, s.Fired(now))
		assert.Equal(t, 1, s.Occurrences)
	})

	t.Run("recurring advances next run", func(t *testing.T) {
		s := &schedule.Schedule{WorkflowID: 1, NextRun: now, IntervalSeconds: 60}
		require.False(t, s.Fired(now))
		assert.Equal(t, now.Add(time.Minute), s.NextRun)
	})

	t.Run("occurrence cap retires", func(t *testing.T) {
		s := &schedule.Schedule{WorkflowID: 1, NextRun: now, IntervalSeconds: 60, MaxOccurrences: 2}
		require.False(t, s.Fired(now))
		assert.True(t, s.Fired(now.Add(time.Minute)))
		assert.Equal(t, 2, s.Occurrences)
	})

	t.Run("until bound retires", func(t *testing.T) {
		s := &schedule.Schedule{
			WorkflowID:      1,
			NextRun:         now,
			IntervalSeconds: 3600,
			Until:           now.Add(30 * time.Minute).Format(time.RFC3339),
		}
		assert.True(t, s.Fired(now), "next run would pass the bound")
	})

	t.Run("unparseable until retires", func(t *testing.T) {
		s := &schedule.Schedule{WorkflowID: 1, NextRun: now, IntervalSeconds: 60, Until: "not-a-time"}
		assert.True(t, s.Fired(now))
	})
}

func TestParseUntil(t *testing.T) {
	zoned, err := schedule.ParseUntil("2026-09-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, zoned.UTC().Hour())

	naive, err := schedule.ParseUntil("2026-09-01T10:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, naive.Location(), "naive bounds are UTC")

	_, err = schedule.ParseUntil("tomorrow")
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	s := &schedule.Schedule{
		WorkflowID:      9,
		NextRun:         time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		IntervalSeconds: 60,
		MaxOccurrences:  3,
		Occurrences:     1,
		Context:         map[string]any{"k": "v"},
	}
	raw, err := s.Marshal()
	require.NoError(t, err)
	got, err := schedule.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = schedule.Unmarshal("{not json")
	assert.Error(t, err)
}

// Property: a recurring schedule with an occurrence cap fires exactly cap
// times before retiring, and NextRun is strictly monotone across firings.
func TestScheduleTerminationProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("occurrence cap is exact and next runs are monotone", prop.ForAll(
		func(interval int64, maxOcc int) bool {
			now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
			s := &schedule.Schedule{WorkflowID: 1, NextRun: now, IntervalSeconds: interval, MaxOccurrences: maxOcc}
			fired := 0
			prev := s.NextRun
			for {
				fired++
				stop := s.Fired(s.NextRun)
				if stop {
					break
				}
				if !s.NextRun.After(prev) {
					return false
				}
				prev = s.NextRun
				if fired > maxOcc {
					return false
				}
			}
			return fired == maxOcc
		},
		gen.Int64Range(1, 86400),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
