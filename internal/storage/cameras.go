package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/your-org/attendance/internal/models"
)

const cameraColumns = `id, name, source, is_active, is_selected, status, error_message, updated_at`

func scanCamera(row pgx.Row, c *models.Camera) error {
	var status string
	if err := row.Scan(&c.ID, &c.Name, &c.Source, &c.IsActive, &c.IsSelected,
		&status, &c.ErrorMessage, &c.UpdatedAt); err != nil {
		return err
	}
	c.Status = models.CameraStatus(status)
	return nil
}

func (q queries) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := q.db.Query(ctx, `SELECT `+cameraColumns+` FROM cameras ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		var c models.Camera
		if err := scanCamera(rows, &c); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	return cameras, nil
}

func (q queries) GetCamera(ctx context.Context, id int64) (*models.Camera, error) {
	c := &models.Camera{}
	if err := scanCamera(q.db.QueryRow(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id), c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return c, nil
}

func (q queries) UpdateCameraStatus(ctx context.Context, id int64, status models.CameraStatus, errMsg string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE cameras SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("update camera status: %w", err)
	}
	return nil
}
