package gateway

import (
	"encoding/json"
	"time"

	"github.com/BugisoftRSG/subathon-timer/internal/timer"
)

// Event is the wire envelope for every overlay update.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventType names the overlay update events.
type EventType string

const (
	EventUpdateTimer      EventType = "update_timer"
	EventUpdateUptime     EventType = "update_uptime"
	EventUpdateIncentives EventType = "update_incentives"
)

// TimerPayload carries the absolute end instant. Forced tells the overlay to
// replace its local countdown instead of animating towards the new value;
// it is omitted from the wire when false.
type TimerPayload struct {
	EndingAt int64 `json:"ending_at"`
	Forced   bool  `json:"forced,omitempty"`
}

// UptimePayload carries the instant the countdown was first started.
type UptimePayload struct {
	StartedAt int64 `json:"started_at"`
}

func timerEvent(endingAt time.Time, forced bool) (*Event, error) {
	return newEvent(EventUpdateTimer, TimerPayload{EndingAt: unixMilli(endingAt), Forced: forced})
}

func uptimeEvent(startedAt time.Time) (*Event, error) {
	return newEvent(EventUpdateUptime, UptimePayload{StartedAt: unixMilli(startedAt)})
}

func incentivesEvent(inc timer.Incentives) (*Event, error) {
	return newEvent(EventUpdateIncentives, inc)
}

func newEvent(t EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: t, Data: data}, nil
}

// unixMilli maps the zero time to 0 so a never-started timer serializes the
// way overlays expect.
func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
