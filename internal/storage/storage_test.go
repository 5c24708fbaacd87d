package storage

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/attendance/internal/biometric"
	"github.com/your-org/attendance/internal/models"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, queries) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error = %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, queries{db: mock}
}

var attendanceCols = []string{"id", "employee_id", "employee_name", "camera_id", "confidence", "type",
	"worked_minutes", "logged_at", "log_date", "photo_key"}

func TestGetEmployee(t *testing.T) {
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		beforeTest func(pgxmock.PgxPoolIface)
		want       *models.Employee
		wantErr    bool
	}{
		{
			name: "found",
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, department, created_at FROM employees WHERE id = $1`)).
					WithArgs(int64(7)).
					WillReturnRows(pgxmock.NewRows([]string{"id", "name", "department", "created_at"}).
						AddRow(int64(7), "Ana", "Ops", created))
			},
			want: &models.Employee{ID: 7, Name: "Ana", Department: "Ops", CreatedAt: created},
		},
		{
			name: "not found",
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(regexp.QuoteMeta(`FROM employees WHERE id = $1`)).
					WithArgs(int64(7)).
					WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name: "query error",
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(regexp.QuoteMeta(`FROM employees WHERE id = $1`)).
					WithArgs(int64(7)).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, q := newMock(t)
			tt.beforeTest(mock)

			got, err := q.GetEmployee(context.Background(), 7)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetEmployee() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("GetEmployee() = %+v, want nil", got)
				}
			} else if got == nil || got.ID != tt.want.ID || got.Name != tt.want.Name || !got.CreatedAt.Equal(tt.want.CreatedAt) {
				t.Errorf("GetEmployee() = %+v, want %+v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestListEmployees(t *testing.T) {
	mock, q := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM employees ORDER BY id`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "department", "created_at"}).
			AddRow(int64(1), "Ana", "", now).
			AddRow(int64(2), "Ben", "", now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM employee_embeddings ORDER BY employee_id, slot`)).
		WillReturnRows(pgxmock.NewRows([]string{"employee_id", "slot", "embedding"}).
			AddRow(int64(1), int16(0), pgvector.NewVector([]float32{1, 0})).
			AddRow(int64(1), int16(3), pgvector.NewVector([]float32{0, 1})).
			AddRow(int64(2), int16(9), pgvector.NewVector([]float32{1, 1})))

	got, err := q.ListEmployees(context.Background())
	if err != nil {
		t.Fatalf("ListEmployees() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d employees, want 2", len(got))
	}
	if got[0].EnrolledSlots() != 2 || got[0].Embeddings[3][1] != 1 {
		t.Errorf("Ana slots = %v", got[0].Embeddings)
	}
	if got[1].EnrolledSlots() != 0 {
		t.Errorf("out-of-range slot was kept: %v", got[1].Embeddings)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateEmbeddingSlot(t *testing.T) {
	vec := []float32{0.6, 0.8}

	tests := []struct {
		name       string
		slot       int
		beforeTest func(pgxmock.PgxPoolIface)
		wantErr    bool
	}{
		{
			name: "commit",
			slot: 2,
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectBegin()
				m.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM employees WHERE id = $1 FOR UPDATE`)).
					WithArgs(int64(5)).
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
				m.ExpectExec(regexp.QuoteMeta(`INSERT INTO employee_embeddings`)).
					WithArgs(int64(5), 2, pgvector.NewVector(vec)).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				m.ExpectCommit()
			},
		},
		{
			name: "write failure rolls back",
			slot: 2,
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectBegin()
				m.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
					WithArgs(int64(5)).
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
				m.ExpectExec(regexp.QuoteMeta(`INSERT INTO employee_embeddings`)).
					WithArgs(int64(5), 2, pgxmock.AnyArg()).
					WillReturnError(errors.New("disk full"))
				m.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name: "unknown employee",
			slot: 0,
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectBegin()
				m.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
					WithArgs(int64(5)).
					WillReturnError(pgx.ErrNoRows)
				m.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name:       "slot out of range",
			slot:       6,
			beforeTest: func(pgxmock.PgxPoolIface) {},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, q := newMock(t)
			tt.beforeTest(mock)

			err := q.UpdateEmbeddingSlot(context.Background(), 5, tt.slot, vec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateEmbeddingSlot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestEmbeddingSlots(t *testing.T) {
	mock, q := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT slot, embedding FROM employee_embeddings WHERE employee_id = $1`)).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"slot", "embedding"}).
			AddRow(int16(1), pgvector.NewVector([]float32{0, 1, 0})))

	slots, err := q.EmbeddingSlots(context.Background(), 3)
	if err != nil {
		t.Fatalf("EmbeddingSlots() error = %v", err)
	}
	if slots[0] != nil || len(slots[1]) != 3 || slots[1][1] != 1 {
		t.Errorf("EmbeddingSlots() = %v", slots)
	}
}

// vectorArg records the embedding argument handed to the database.
type vectorArg struct {
	got *pgvector.Vector
}

func (a vectorArg) Match(v any) bool {
	switch vec := v.(type) {
	case pgvector.Vector:
		*a.got = vec
		return true
	case string:
		return a.got.Parse(vec) == nil
	}
	return false
}

func TestEmbeddingSlotRoundTrip(t *testing.T) {
	old := make([]float32, 512)
	next := make([]float32, 512)
	for i := range old {
		old[i] = float32(math.Sin(float64(i)))
		next[i] = float32(math.Cos(float64(i) * 0.7))
	}
	blended := biometric.Blend(old, next, 0.1)

	mock, q := newMock(t)
	var written pgvector.Vector
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO employee_embeddings`)).
		WithArgs(int64(5), 2, vectorArg{got: &written}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := q.UpdateEmbeddingSlot(context.Background(), 5, 2, blended); err != nil {
		t.Fatalf("UpdateEmbeddingSlot() error = %v", err)
	}

	// The column holds the vector's text form; read it back the same way.
	wire, err := written.Value()
	if err != nil {
		t.Fatalf("encode vector: %v", err)
	}
	var stored pgvector.Vector
	if err := stored.Scan(wire); err != nil {
		t.Fatalf("decode vector: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT slot, embedding FROM employee_embeddings`)).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"slot", "embedding"}).AddRow(int16(2), stored))

	slots, err := q.EmbeddingSlots(context.Background(), 5)
	if err != nil {
		t.Fatalf("EmbeddingSlots() error = %v", err)
	}
	got := slots[2]
	if len(got) != len(blended) {
		t.Fatalf("read %d dims, want %d", len(got), len(blended))
	}
	var norm float64
	for i := range got {
		if math.Abs(float64(got[i]-blended[i])) > 1e-6 {
			t.Fatalf("dim %d = %v, want %v", i, got[i], blended[i])
		}
		norm += float64(got[i]) * float64(got[i])
	}
	if n := math.Sqrt(norm); math.Abs(n-1) > 1e-6 {
		t.Errorf("norm = %v, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsertAttendance(t *testing.T) {
	worked := 360
	ts := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	rec := models.AttendanceRecord{
		EmployeeID:    1,
		EmployeeName:  "Ana",
		CameraID:      "0",
		Confidence:    0.91,
		Type:          models.LogTypeExit,
		WorkedMinutes: &worked,
		Timestamp:     ts,
		LogDate:       time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name       string
		beforeTest func(pgxmock.PgxPoolIface)
		wantID     int64
		wantErr    error
	}{
		{
			name: "inserted",
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(regexp.QuoteMeta(`INSERT INTO attendance_logs`)).
					WithArgs(int64(1), "Ana", "0", 0.91, "EXIT", &worked, ts, rec.LogDate, "").
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
			},
			wantID: 42,
		},
		{
			name: "unique violation",
			beforeTest: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(regexp.QuoteMeta(`INSERT INTO attendance_logs`)).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: "23505"})
			},
			wantErr: ErrDuplicateAttendance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, q := newMock(t)
			tt.beforeTest(mock)

			r := rec
			err := q.InsertAttendance(context.Background(), &r)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("InsertAttendance() error = %v, want %v", err, tt.wantErr)
			}
			if r.ID != tt.wantID {
				t.Errorf("ID = %d, want %d", r.ID, tt.wantID)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestLogsBetween(t *testing.T) {
	mock, q := newMock(t)
	from := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	worked := 300

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE employee_id = $1 AND logged_at >= $2 AND logged_at < $3`)).
		WithArgs(int64(1), from, to).
		WillReturnRows(pgxmock.NewRows(attendanceCols).
			AddRow(int64(1), int64(1), "Ana", "0", 0.9, "ENTRY", nil, from.Add(8*time.Hour), from, "").
			AddRow(int64(2), int64(1), "Ana", "0", 0.9, "EXIT", &worked, from.Add(13*time.Hour), from, "k.jpg"))

	logs, err := q.LogsBetween(context.Background(), 1, from, to)
	if err != nil {
		t.Fatalf("LogsBetween() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
	if logs[0].Type != models.LogTypeEntry || logs[0].WorkedMinutes != nil {
		t.Errorf("entry = %+v", logs[0])
	}
	if logs[1].Type != models.LogTypeExit || logs[1].WorkedMinutes == nil || *logs[1].WorkedMinutes != 300 {
		t.Errorf("exit = %+v", logs[1])
	}
}

func TestQueryAttendanceFilters(t *testing.T) {
	mock, q := newMock(t)
	id := int64(4)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE employee_id = $1 AND logged_at >= $2 ORDER BY logged_at DESC LIMIT $3 OFFSET $4`)).
		WithArgs(int64(4), from, 100, 0).
		WillReturnRows(pgxmock.NewRows(attendanceCols))

	got, err := q.QueryAttendance(context.Background(), models.AttendanceFilter{EmployeeID: &id, From: &from})
	if err != nil {
		t.Fatalf("QueryAttendance() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteAttendanceBefore(t *testing.T) {
	mock, q := newMock(t)
	cutoff := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM attendance_logs WHERE logged_at < $1 RETURNING photo_key`)).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"photo_key"}).AddRow("a.jpg").AddRow("").AddRow("b.jpg"))

	n, keys, err := q.DeleteAttendanceBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteAttendanceBefore() error = %v", err)
	}
	if n != 3 || len(keys) != 2 || keys[0] != "a.jpg" || keys[1] != "b.jpg" {
		t.Errorf("DeleteAttendanceBefore() = %d, %v", n, keys)
	}
}

func TestUpdateCameraStatus(t *testing.T) {
	mock, q := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE cameras SET status = $1, error_message = $2`)).
		WithArgs("error", "device busy", int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := q.UpdateCameraStatus(context.Background(), 2, models.CameraStatusError, "device busy"); err != nil {
		t.Fatalf("UpdateCameraStatus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetCameraNotFound(t *testing.T) {
	mock, q := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM cameras WHERE id = $1`)).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	c, err := q.GetCamera(context.Background(), 9)
	if err != nil || c != nil {
		t.Errorf("GetCamera() = %+v, %v, want nil, nil", c, err)
	}
}
