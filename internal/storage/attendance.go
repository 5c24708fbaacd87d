package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/your-org/attendance/internal/models"
)

// ErrDuplicateAttendance means the employee already has a record of that type
// for the day.
var ErrDuplicateAttendance = errors.New("attendance already recorded for the day")

const attendanceColumns = `id, employee_id, employee_name, camera_id, confidence, type,
	worked_minutes, logged_at, log_date, photo_key`

func scanAttendance(row pgx.Row, r *models.AttendanceRecord) error {
	var typ string
	if err := row.Scan(&r.ID, &r.EmployeeID, &r.EmployeeName, &r.CameraID, &r.Confidence, &typ,
		&r.WorkedMinutes, &r.Timestamp, &r.LogDate, &r.PhotoKey); err != nil {
		return err
	}
	r.Type = models.LogType(typ)
	return nil
}

// LogsBetween returns an employee's records with from <= logged_at < to,
// oldest first.
func (q queries) LogsBetween(ctx context.Context, employeeID int64, from, to time.Time) ([]models.AttendanceRecord, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_logs
		 WHERE employee_id = $1 AND logged_at >= $2 AND logged_at < $3
		 ORDER BY logged_at`,
		employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query attendance logs: %w", err)
	}
	return collectAttendance(rows)
}

// InsertAttendance stores rec and sets its ID.
func (q queries) InsertAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO attendance_logs
		 (employee_id, employee_name, camera_id, confidence, type, worked_minutes, logged_at, log_date, photo_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		rec.EmployeeID, rec.EmployeeName, rec.CameraID, rec.Confidence, string(rec.Type),
		rec.WorkedMinutes, rec.Timestamp, rec.LogDate, rec.PhotoKey,
	).Scan(&rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAttendance
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// QueryAttendance lists records matching f, newest first.
func (q queries) QueryAttendance(ctx context.Context, f models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EmployeeID != nil {
		add("employee_id = $%d", *f.EmployeeID)
	}
	if f.CameraID != "" {
		add("camera_id = $%d", f.CameraID)
	}
	if f.From != nil {
		add("logged_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("logged_at < $%d", *f.To)
	}

	query := `SELECT ` + attendanceColumns + ` FROM attendance_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY logged_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	return collectAttendance(rows)
}

// GetAttendance returns one record, or nil if it does not exist.
func (q queries) GetAttendance(ctx context.Context, id int64) (*models.AttendanceRecord, error) {
	r := &models.AttendanceRecord{}
	row := q.db.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance_logs WHERE id = $1`, id)
	if err := scanAttendance(row, r); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return r, nil
}

// DeleteAttendanceBefore removes records logged before cutoff and returns the
// photo keys they referenced.
func (q queries) DeleteAttendanceBefore(ctx context.Context, cutoff time.Time) (int64, []string, error) {
	rows, err := q.db.Query(ctx,
		`DELETE FROM attendance_logs WHERE logged_at < $1 RETURNING photo_key`, cutoff)
	if err != nil {
		return 0, nil, fmt.Errorf("delete attendance: %w", err)
	}
	defer rows.Close()

	var (
		n    int64
		keys []string
	)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return n, keys, fmt.Errorf("scan deleted photo key: %w", err)
		}
		n++
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return n, keys, fmt.Errorf("delete attendance: %w", err)
	}
	return n, keys, nil
}

func collectAttendance(rows pgx.Rows) ([]models.AttendanceRecord, error) {
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		var r models.AttendanceRecord
		if err := scanAttendance(rows, &r); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read attendance: %w", err)
	}
	return records, nil
}
