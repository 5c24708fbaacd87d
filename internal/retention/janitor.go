package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
)

// Records deletes attendance logs older than a cutoff and returns the photo
// keys they referenced.
type Records interface {
	DeleteAttendanceBefore(ctx context.Context, cutoff time.Time) (int64, []string, error)
}

// Photos removes stored photos by key and reports how many were removed.
type Photos interface {
	DeletePhotos(ctx context.Context, keys []string) (int, error)
}

// Janitor periodically removes attendance data past the retention period.
type Janitor struct {
	records Records
	photos  Photos
	cfg     config.RetentionConfig
	cron    *cron.Cron
	now     func() time.Time
}

// NewJanitor schedules the cleanup on cfg.Schedule, evaluated in loc.
// photos may be nil.
func NewJanitor(records Records, photos Photos, cfg config.RetentionConfig, loc *time.Location) (*Janitor, error) {
	if loc == nil {
		loc = time.Local
	}
	j := &Janitor{
		records: records,
		photos:  photos,
		cfg:     cfg,
		cron:    cron.New(cron.WithLocation(loc)),
		now:     time.Now,
	}
	if _, err := j.cron.AddFunc(cfg.Schedule, j.run); err != nil {
		return nil, fmt.Errorf("schedule retention %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Run starts the schedule and blocks until ctx is cancelled and any running
// cleanup has finished.
func (j *Janitor) Run(ctx context.Context) error {
	j.cron.Start()
	slog.Info("retention scheduled", "schedule", j.cfg.Schedule, "days", j.cfg.Days)

	<-ctx.Done()
	<-j.cron.Stop().Done()
	return nil
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		slog.Error("retention cleanup failed", "error", err)
	}
}

// RunOnce deletes logs older than the retention period along with their
// photos. Photo deletion failures are logged and do not fail the run.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().AddDate(0, 0, -j.cfg.Days)

	n, keys, err := j.records.DeleteAttendanceBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete attendance logs: %w", err)
	}
	observability.RetentionDeleted.Add(float64(n))

	var removed int
	if j.photos != nil && len(keys) > 0 {
		removed, err = j.photos.DeletePhotos(ctx, keys)
		if err != nil {
			slog.Warn("delete attendance photos", "count", len(keys), "removed", removed, "error", err)
		}
	}

	slog.Info("retention cleanup", "cutoff", cutoff, "deleted", n, "photos", removed)
	return n, nil
}
