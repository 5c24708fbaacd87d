package models

import "time"

// SlotCount is the fixed number of embedding slots per employee.
const SlotCount = 6

// EmbeddingDim is the length of an ArcFace embedding.
const EmbeddingDim = 512

type Employee struct {
	ID         int64                `json:"id" db:"id"`
	Name       string               `json:"name" db:"name"`
	Department string               `json:"department" db:"department"`
	Embeddings [SlotCount][]float32 `json:"-"`
	CreatedAt  time.Time            `json:"created_at" db:"created_at"`
}

// EnrolledSlots returns the number of non-empty embedding slots.
func (e *Employee) EnrolledSlots() int {
	n := 0
	for _, s := range e.Embeddings {
		if len(s) > 0 {
			n++
		}
	}
	return n
}
