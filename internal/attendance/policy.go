// Package attendance decides whether a recognized employee may log ENTRY or
// EXIT and records the outcome.
package attendance

import (
	"fmt"
	"time"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

// BlockReason classifies a refused attendance event.
type BlockReason string

const (
	ReasonOutsideHours      BlockReason = "outside_hours"
	ReasonCooldown          BlockReason = "cooldown"
	ReasonAlreadyCompleted  BlockReason = "already_completed"
	ReasonExitAlreadyLogged BlockReason = "exit_already_logged"
	ReasonInvalidState      BlockReason = "invalid_state"
)

// Window is an inclusive range of minutes since local midnight.
type Window struct {
	Start int
	End   int
}

func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.Start && m <= w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// Policy holds the daily attendance rules.
type Policy struct {
	Entry        Window
	Exit         Window
	Cooldown     time.Duration
	FlexibleExit bool
	Location     *time.Location
}

func NewPolicy(cfg config.AttendanceConfig) (Policy, error) {
	var p Policy
	var err error
	clocks := []struct {
		dst *int
		src string
	}{
		{&p.Entry.Start, cfg.EntryStart},
		{&p.Entry.End, cfg.EntryEnd},
		{&p.Exit.Start, cfg.ExitStart},
		{&p.Exit.End, cfg.ExitEnd},
	}
	for _, c := range clocks {
		if *c.dst, err = config.ParseClock(c.src); err != nil {
			return Policy{}, fmt.Errorf("parse attendance window: %w", err)
		}
	}
	if p.Location, err = cfg.Location(); err != nil {
		return Policy{}, fmt.Errorf("load timezone: %w", err)
	}
	p.Cooldown = cfg.Cooldown
	p.FlexibleExit = cfg.FlexibleExitEnabled()
	return p, nil
}

// Decision is the outcome of evaluating one attendance attempt.
type Decision struct {
	Allowed bool
	Type    models.LogType
	// WorkedMinutes is set for an EXIT that follows an ENTRY.
	WorkedMinutes *int
	Reason        BlockReason
	Message       string
	// RemainingMinutes is set for ReasonCooldown.
	RemainingMinutes int
}

// DayBounds returns local midnight of now's day and the following midnight.
func (p Policy) DayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(p.location())
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return start, start.AddDate(0, 0, 1)
}

// Decide applies the daily rules to the employee's logs for now's day.
func (p Policy) Decide(logs []models.AttendanceRecord, now time.Time) Decision {
	now = now.In(p.location())

	var entries, exits int
	var entryAt time.Time
	for _, l := range logs {
		switch l.Type {
		case models.LogTypeEntry:
			if entries == 0 {
				entryAt = l.Timestamp
			}
			entries++
		case models.LogTypeExit:
			exits++
		}
	}

	switch {
	case entries > 0 && exits > 0:
		return blocked(ReasonAlreadyCompleted, "Attendance already completed today")

	case entries == 0 && exits > 0:
		return blocked(ReasonExitAlreadyLogged, "Exit already logged today")

	case entries == 0:
		if p.Entry.Contains(now) {
			return Decision{Allowed: true, Type: models.LogTypeEntry}
		}
		if p.FlexibleExit && p.Exit.Contains(now) {
			return Decision{Allowed: true, Type: models.LogTypeExit}
		}
		return blocked(ReasonOutsideHours, fmt.Sprintf("Outside standard hours: entry is allowed %s", p.Entry))

	case entries == 1:
		elapsed := now.Sub(entryAt)
		if elapsed < p.Cooldown {
			remaining := int((p.Cooldown - elapsed) / time.Minute)
			d := blocked(ReasonCooldown, fmt.Sprintf("Please wait %d minutes before logging exit", remaining))
			d.RemainingMinutes = remaining
			return d
		}
		if !p.Exit.Contains(now) {
			return blocked(ReasonOutsideHours, fmt.Sprintf("Outside standard hours: exit is allowed %s", p.Exit))
		}
		worked := int(elapsed / time.Minute)
		return Decision{Allowed: true, Type: models.LogTypeExit, WorkedMinutes: &worked}

	default:
		return blocked(ReasonInvalidState, "Invalid attendance state for today")
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func blocked(reason BlockReason, msg string) Decision {
	return Decision{Reason: reason, Message: msg}
}
