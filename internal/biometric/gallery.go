package biometric

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

// EmployeeSource lists enrolled employees with their embedding slots.
type EmployeeSource interface {
	ListEmployees(ctx context.Context) ([]models.Employee, error)
}

// Candidate is the best gallery entry for a probe embedding.
type Candidate struct {
	EmployeeID int64
	Name       string
	Slot       int
	Similarity float64
}

type galleryEntry struct {
	employeeID int64
	name       string
	slot       int
	vec        []float64
}

// Gallery is the in-memory table of enrolled embeddings used for matching.
// It is safe for concurrent use; Replace swaps the whole table atomically.
type Gallery struct {
	mu      sync.RWMutex
	entries []galleryEntry
}

func NewGallery() *Gallery {
	return &Gallery{}
}

// Replace loads every non-empty slot of employees and returns the entry count.
func (g *Gallery) Replace(employees []models.Employee) int {
	entries := make([]galleryEntry, 0, len(employees)*2)
	for _, e := range employees {
		for slot, vec := range e.Embeddings {
			if len(vec) == 0 {
				continue
			}
			entries = append(entries, galleryEntry{
				employeeID: e.ID,
				name:       e.Name,
				slot:       slot,
				vec:        Normalize(vec),
			})
		}
	}

	g.mu.Lock()
	g.entries = entries
	g.mu.Unlock()
	return len(entries)
}

// Reload replaces the gallery with the employees currently held by src.
func (g *Gallery) Reload(ctx context.Context, src EmployeeSource) (int, error) {
	employees, err := src.ListEmployees(ctx)
	if err != nil {
		return 0, fmt.Errorf("list employees: %w", err)
	}
	n := g.Replace(employees)
	observability.GallerySize.Set(float64(n))
	return n, nil
}

// SetSlot replaces or adds one slot for an employee.
func (g *Gallery) SetSlot(employeeID int64, name string, slot int, vec []float32) {
	e := galleryEntry{employeeID: employeeID, name: name, slot: slot, vec: Normalize(vec)}

	g.mu.Lock()
	defer g.mu.Unlock()
	idx := -1
	for i := range g.entries {
		if g.entries[i].employeeID != employeeID {
			continue
		}
		if e.name == "" {
			e.name = g.entries[i].name
		}
		if g.entries[i].slot == slot {
			idx = i
		}
	}
	if idx >= 0 {
		g.entries[idx] = e
		return
	}
	g.entries = append(g.entries, e)
}

// Name returns the display name of an enrolled employee.
func (g *Gallery) Name(employeeID int64) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.entries {
		if e.employeeID == employeeID {
			return e.name, true
		}
	}
	return "", false
}

func (g *Gallery) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Best returns the entry with the highest cosine similarity to probe.
func (g *Gallery) Best(probe []float32) (Candidate, bool) {
	p := Normalize(probe)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var best Candidate
	found := false
	for _, e := range g.entries {
		if len(e.vec) != len(p) {
			continue
		}
		sim := floats.Dot(p, e.vec)
		if !found || sim > best.Similarity {
			best = Candidate{EmployeeID: e.employeeID, Name: e.name, Slot: e.slot, Similarity: sim}
			found = true
		}
	}
	return best, found
}
