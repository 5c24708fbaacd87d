package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

var (
	// ErrUnknownEmployee means the employee id is not enrolled.
	ErrUnknownEmployee = errors.New("unknown employee")
	// ErrStoreFailure means the store could not be read or written; nothing
	// was recorded.
	ErrStoreFailure = errors.New("attendance store failure")
)

// Store is the persistence the service needs inside the critical section.
type Store interface {
	GetEmployee(ctx context.Context, id int64) (*models.Employee, error)
	LogsBetween(ctx context.Context, employeeID int64, from, to time.Time) ([]models.AttendanceRecord, error)
	InsertAttendance(ctx context.Context, rec *models.AttendanceRecord) error
}

// PhotoStore keeps the JPEG photo of each logged record.
type PhotoStore interface {
	PutPhoto(ctx context.Context, key string, jpeg []byte) error
}

// Notifier announces logged records.
type Notifier interface {
	PublishAttendance(ctx context.Context, rec models.AttendanceRecord) error
}

type Status string

const (
	StatusLogged    Status = "logged"
	StatusBlocked   Status = "blocked"
	StatusDebounced Status = "debounced"
)

// Request is one attendance attempt for a recognized employee.
type Request struct {
	EmployeeID int64
	CameraID   string
	Confidence float64
	// Photo is an optional JPEG stored alongside the record.
	Photo []byte
}

// Outcome is the result of EvaluateAndLog.
type Outcome struct {
	Status           Status
	Type             models.LogType
	WorkedMinutes    *int
	Reason           BlockReason
	Message          string
	RemainingMinutes int
	Record           *models.AttendanceRecord
}

// Service evaluates and records attendance.
type Service struct {
	registry *Registry
	policy   Policy
	store    Store
	photos   PhotoStore
	notifier Notifier
	now      func() time.Time
}

// NewService builds a service. photos and notifier may be nil.
func NewService(registry *Registry, policy Policy, store Store, photos PhotoStore, notifier Notifier) *Service {
	return &Service{
		registry: registry,
		policy:   policy,
		store:    store,
		photos:   photos,
		notifier: notifier,
		now:      time.Now,
	}
}

// WithStore returns a service sharing the registry but using another store,
// such as a connection owned by one recognition loop.
func (s *Service) WithStore(store Store) *Service {
	c := *s
	c.store = store
	return &c
}

// Policy returns the rules the service applies.
func (s *Service) Policy() Policy {
	return s.policy
}

// EvaluateAndLog decides whether the request becomes an ENTRY or EXIT and
// records it. Repeated calls for the same employee within the debounce
// window return StatusDebounced without touching the store.
func (s *Service) EvaluateAndLog(ctx context.Context, req Request) (Outcome, error) {
	out, err := s.evaluate(ctx, req)
	if err != nil {
		observability.AttendanceDecisions.WithLabelValues("failed", "").Inc()
		return Outcome{}, err
	}
	observability.AttendanceDecisions.WithLabelValues(string(out.Status), string(out.Reason)).Inc()

	if out.Status == StatusLogged {
		slog.Info("attendance logged",
			"employee_id", req.EmployeeID,
			"type", out.Type,
			"camera_id", req.CameraID,
			"confidence", req.Confidence,
		)
		s.afterLog(ctx, out.Record, req.Photo)
	}
	return out, nil
}

func (s *Service) evaluate(ctx context.Context, req Request) (Outcome, error) {
	r := s.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	now := s.now().In(s.policy.location())

	if r.debounced(req.EmployeeID, now) {
		out := Outcome{Status: StatusDebounced, Message: "Already processed, please wait"}
		if d, ok := r.lastBlock[req.EmployeeID]; ok {
			out.Reason = d.Reason
			out.Message = d.Message
			out.RemainingMinutes = d.RemainingMinutes
		}
		return out, nil
	}
	undo := r.mark(req.EmployeeID, now)

	emp, err := s.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		undo()
		return Outcome{}, fmt.Errorf("%w: load employee: %w", ErrStoreFailure, err)
	}
	if emp == nil {
		undo()
		return Outcome{}, ErrUnknownEmployee
	}

	dayStart, dayEnd := s.policy.DayBounds(now)
	logs, err := s.store.LogsBetween(ctx, req.EmployeeID, dayStart, dayEnd)
	if err != nil {
		undo()
		return Outcome{}, fmt.Errorf("%w: load daily logs: %w", ErrStoreFailure, err)
	}

	d := s.policy.Decide(logs, now)
	if !d.Allowed {
		r.lastBlock[req.EmployeeID] = d
		return Outcome{
			Status:           StatusBlocked,
			Reason:           d.Reason,
			Message:          d.Message,
			RemainingMinutes: d.RemainingMinutes,
		}, nil
	}

	rec := &models.AttendanceRecord{
		EmployeeID:    req.EmployeeID,
		EmployeeName:  emp.Name,
		CameraID:      req.CameraID,
		Confidence:    req.Confidence,
		Type:          d.Type,
		WorkedMinutes: d.WorkedMinutes,
		Timestamp:     now,
		LogDate:       dayStart,
	}
	if len(req.Photo) > 0 {
		rec.PhotoKey = PhotoKey(req.EmployeeID, now)
	}
	if err := s.store.InsertAttendance(ctx, rec); err != nil {
		undo()
		return Outcome{}, fmt.Errorf("%w: insert record: %w", ErrStoreFailure, err)
	}
	delete(r.lastBlock, req.EmployeeID)

	return Outcome{
		Status:        StatusLogged,
		Type:          d.Type,
		WorkedMinutes: d.WorkedMinutes,
		Message:       fmt.Sprintf("%s logged for %s", d.Type, emp.Name),
		Record:        rec,
	}, nil
}

// afterLog stores the photo and publishes the record outside the lock.
// Failures here do not undo the record.
func (s *Service) afterLog(ctx context.Context, rec *models.AttendanceRecord, photo []byte) {
	if s.photos != nil && rec.PhotoKey != "" {
		if err := s.photos.PutPhoto(ctx, rec.PhotoKey, photo); err != nil {
			slog.Warn("store attendance photo", "key", rec.PhotoKey, "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.PublishAttendance(ctx, *rec); err != nil {
			slog.Warn("publish attendance event", "record_id", rec.ID, "error", err)
		}
	}
}

// Summary returns the work-time summary of an employee for the day containing day.
func (s *Service) Summary(ctx context.Context, employeeID int64, day time.Time, minimumMinutes int) (DaySummary, error) {
	from, to := s.policy.DayBounds(day)
	logs, err := s.store.LogsBetween(ctx, employeeID, from, to)
	if err != nil {
		return DaySummary{}, fmt.Errorf("load daily logs: %w", err)
	}
	return Summarize(logs, minimumMinutes), nil
}

// PhotoKey builds the object key for an attendance photo.
func PhotoKey(employeeID int64, at time.Time) string {
	return fmt.Sprintf("attendance/%s/%d_%s.jpg", at.Format("2006/01/02"), employeeID, uuid.NewString())
}
