package attendance

import (
	"time"

	"github.com/your-org/attendance/internal/models"
)

type WorkStatus string

const (
	WorkAbsent       WorkStatus = "absent"
	WorkInProgress   WorkStatus = "in_progress"
	WorkInsufficient WorkStatus = "insufficient"
	WorkComplete     WorkStatus = "complete"
)

// DaySummary describes one employee's working day.
type DaySummary struct {
	Entry         *time.Time
	Exit          *time.Time
	WorkedMinutes int
	Status        WorkStatus
}

// Summarize derives a DaySummary from one day's logs. minimumMinutes is the
// threshold for a complete day.
func Summarize(logs []models.AttendanceRecord, minimumMinutes int) DaySummary {
	var s DaySummary
	var exitWorked *int
	for _, l := range logs {
		ts := l.Timestamp
		switch l.Type {
		case models.LogTypeEntry:
			if s.Entry == nil {
				s.Entry = &ts
			}
		case models.LogTypeExit:
			if s.Exit == nil {
				s.Exit = &ts
				exitWorked = l.WorkedMinutes
			}
		}
	}

	switch {
	case s.Entry == nil && s.Exit == nil:
		s.Status = WorkAbsent
	case s.Exit == nil:
		s.Status = WorkInProgress
	default:
		if exitWorked != nil {
			s.WorkedMinutes = *exitWorked
		} else if s.Entry != nil {
			s.WorkedMinutes = int(s.Exit.Sub(*s.Entry) / time.Minute)
		}
		s.Status = WorkInsufficient
		if s.WorkedMinutes >= minimumMinutes {
			s.Status = WorkComplete
		}
	}
	return s
}
