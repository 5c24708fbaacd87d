package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/attendance/internal/models"
)

// ListEmployees returns every employee with their enrolled embedding slots.
func (q queries) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, name, department, created_at FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []models.Employee
	index := make(map[int64]int)
	for rows.Next() {
		var e models.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Department, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		index[e.ID] = len(employees)
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	slots, err := q.db.Query(ctx,
		`SELECT employee_id, slot, embedding FROM employee_embeddings ORDER BY employee_id, slot`)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer slots.Close()

	for slots.Next() {
		var (
			id   int64
			slot int16
			vec  pgvector.Vector
		)
		if err := slots.Scan(&id, &slot, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		i, ok := index[id]
		if !ok || slot < 0 || int(slot) >= models.SlotCount {
			continue
		}
		employees[i].Embeddings[slot] = vec.Slice()
	}
	if err := slots.Err(); err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	return employees, nil
}

// GetEmployee returns an employee without embeddings, or nil if unknown.
func (q queries) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	e := &models.Employee{}
	err := q.db.QueryRow(ctx,
		`SELECT id, name, department, created_at FROM employees WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.Department, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// EmbeddingSlots returns the stored embedding slots of an employee. Empty
// slots are nil.
func (q queries) EmbeddingSlots(ctx context.Context, employeeID int64) ([models.SlotCount][]float32, error) {
	var out [models.SlotCount][]float32
	rows, err := q.db.Query(ctx,
		`SELECT slot, embedding FROM employee_embeddings WHERE employee_id = $1`, employeeID)
	if err != nil {
		return out, fmt.Errorf("load embedding slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			slot int16
			vec  pgvector.Vector
		)
		if err := rows.Scan(&slot, &vec); err != nil {
			return out, fmt.Errorf("scan embedding slot: %w", err)
		}
		if slot >= 0 && int(slot) < models.SlotCount {
			out[slot] = vec.Slice()
		}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("load embedding slots: %w", err)
	}
	return out, nil
}

// UpdateEmbeddingSlot overwrites one slot in a single transaction.
func (q queries) UpdateEmbeddingSlot(ctx context.Context, employeeID int64, slot int, vec []float32) error {
	if slot < 0 || slot >= models.SlotCount {
		return fmt.Errorf("embedding slot %d out of range", slot)
	}

	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin slot update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM employees WHERE id = $1 FOR UPDATE`, employeeID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("employee %d not found", employeeID)
		}
		return fmt.Errorf("lock employee: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO employee_embeddings (employee_id, slot, embedding, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (employee_id, slot) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`,
		employeeID, slot, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("write embedding slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit slot update: %w", err)
	}
	return nil
}
