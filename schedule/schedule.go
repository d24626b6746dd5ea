// Package schedule implements the durable scheduler: a time-ordered Redis
// sorted set of pending fire-times that drains onto the trigger stream as
// wallclock advances, plus the runner loop that ticks the drain and reacts
// to workflow lifecycle events.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

type (
	// Schedule is one recurring or one-shot fire-time policy for a
	// workflow's scheduler trigger. Schedules are stored JSON-encoded as
	// sorted-set members, scored by the unix timestamp of NextRun; the
	// serialized payload is the member's identity.
	Schedule struct {
		// WorkflowID is the workflow to fire.
		WorkflowID int64 `json:"workflow_id"`
		// NextRun is the next fire time in UTC. Monotone across occurrences
		// within one schedule.
		NextRun time.Time `json:"next_run"`
		// IntervalSeconds is the recurrence interval. Zero means one-shot.
		IntervalSeconds int64 `json:"interval_seconds,omitempty"`
		// Until optionally bounds recurrence; the schedule retires once
		// NextRun passes it. Stored as the raw string from node config and
		// parsed timezone-aware (naive values are UTC).
		Until string `json:"until,omitempty"`
		// MaxOccurrences optionally caps total firings. Zero means unbounded.
		MaxOccurrences int `json:"max_occurrences,omitempty"`
		// Occurrences counts firings so far.
		Occurrences int `json:"occurrences"`
		// Context seeds each fired invocation's execution context.
		Context map[string]any `json:"context,omitempty"`
	}
)

// FromConfig derives a schedule from a scheduler trigger node's custom
// configuration: delay_seconds, interval_seconds, max_occurrences, until and
// context. NextRun is now plus the configured delay. Config values arrive
// from JSON so numbers are float64.
func FromConfig(workflowID int64, cfg map[string]any, now time.Time) *Schedule {
	s := &Schedule{
		WorkflowID:      workflowID,
		NextRun:         now.UTC().Add(time.Duration(configInt(cfg, "delay_seconds")) * time.Second),
		IntervalSeconds: configInt(cfg, "interval_seconds"),
		MaxOccurrences:  int(configInt(cfg, "max_occurrences")),
	}
	if until, ok := cfg["until"].(string); ok {
		s.Until = until
	}
	if c, ok := cfg["context"].(map[string]any); ok {
		s.Context = c
	}
	return s
}

// Fired records one firing at the given instant and advances NextRun.
// It returns true when the schedule is retired: one-shot schedules always
// retire, recurring schedules retire once the occurrence cap is reached or
// the next run would pass the until bound. An unparseable until bound
// retires the schedule rather than letting it recur forever.
func (s *Schedule) Fired(now time.Time) (stop bool) {
	s.Occurrences++
	if s.IntervalSeconds <= 0 {
		return true
	}
	s.NextRun = now.UTC().Add(time.Duration(s.IntervalSeconds) * time.Second)
	if s.Until != "" {
		until, err := ParseUntil(s.Until)
		if err != nil || s.NextRun.After(until) {
			return true
		}
	}
	if s.MaxOccurrences > 0 && s.Occurrences >= s.MaxOccurrences {
		return true
	}
	return false
}

// Score returns the sorted-set score for the schedule: NextRun as UTC unix
// seconds.
func (s *Schedule) Score() float64 {
	return float64(s.NextRun.UTC().UnixNano()) / float64(time.Second)
}

// Marshal encodes the schedule as its sorted-set member payload.
func (s *Schedule) Marshal() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal schedule for workflow %d: %w", s.WorkflowID, err)
	}
	return string(b), nil
}

// Unmarshal decodes a sorted-set member payload.
func Unmarshal(raw string) (*Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unmarshal schedule payload: %w", err)
	}
	return &s, nil
}

// ParseUntil parses an until bound. RFC 3339 values keep their zone; naive
// "2006-01-02T15:04:05" values are interpreted as UTC.
func ParseUntil(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse until bound %q: %w", raw, err)
	}
	return t, nil
}

// configInt reads an integer-valued config field, accepting the numeric
// types JSON decoding can produce.
func configInt(cfg map[string]any, key string) int64 {
	switch v := cfg[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
