// Package adaptive folds trusted recognitions back into stored face profiles
// so they follow gradual appearance changes.
package adaptive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/biometric"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

// ProfileStore reads and writes an employee's embedding slots.
type ProfileStore interface {
	EmbeddingSlots(ctx context.Context, employeeID int64) ([models.SlotCount][]float32, error)
	UpdateEmbeddingSlot(ctx context.Context, employeeID int64, slot int, vec []float32) error
}

// SlotSetter receives committed slot updates, normally the matching gallery.
type SlotSetter interface {
	SetSlot(employeeID int64, name string, slot int, vec []float32)
}

// Observation is one recognized face offered for learning.
type Observation struct {
	EmployeeID int64
	Embedding  []float32
	Confidence float64
	Liveness   float64
}

// learningState is guarded by its own mutex, held across store calls.
type learningState struct {
	mu         sync.Mutex
	stable     int
	candidate  []float64
	lastUpdate time.Time
}

// Learner tracks per-employee learning state in memory.
type Learner struct {
	cfg     config.AdaptiveConfig
	gallery SlotSetter
	now     func() time.Time

	mu     sync.Mutex // guards states, not the entries
	states map[int64]*learningState
}

func NewLearner(cfg config.AdaptiveConfig, gallery SlotSetter) *Learner {
	return &Learner{
		cfg:     cfg,
		gallery: gallery,
		now:     time.Now,
		states:  make(map[int64]*learningState),
	}
}

// Observe records a recognition and, once enough trusted observations have
// accumulated, updates the closest stored slot. It reports whether a slot was
// written. Storage failures are logged and leave the learning state as it was.
func (l *Learner) Observe(ctx context.Context, store ProfileStore, obs Observation) bool {
	if l.cfg.Disabled || len(obs.Embedding) == 0 {
		return false
	}

	st := l.state(obs.EmployeeID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if obs.Confidence < l.cfg.MinConfidence || obs.Liveness < l.cfg.MinLiveness {
		if obs.Confidence < l.cfg.ResetBelow && st.stable > 0 {
			slog.Debug("adaptive learning reset", "employee_id", obs.EmployeeID, "confidence", obs.Confidence)
			st.stable = 0
			st.candidate = nil
		}
		return false
	}

	now := l.now()
	if !st.lastUpdate.IsZero() && now.Sub(st.lastUpdate) < l.cfg.Interval {
		return false
	}

	stable := st.stable + 1
	var prev []float64
	if st.candidate != nil {
		prev = append([]float64(nil), st.candidate...)
	}
	candidate := biometric.RunningMean(prev, obs.Embedding, stable)

	if stable < l.cfg.StableCount {
		st.stable = stable
		st.candidate = candidate
		return false
	}

	slot, updated, err := l.commit(ctx, store, obs.EmployeeID, biometric.ToFloat32(candidate))
	if err != nil {
		observability.ProfileUpdates.WithLabelValues("failed").Inc()
		slog.Error("adaptive profile update", "employee_id", obs.EmployeeID, "error", err)
		return false
	}
	if updated == nil {
		observability.ProfileUpdates.WithLabelValues("skipped").Inc()
		return false
	}

	l.gallery.SetSlot(obs.EmployeeID, "", slot, updated)
	st.stable = 0
	st.candidate = nil
	st.lastUpdate = now

	observability.ProfileUpdates.WithLabelValues("applied").Inc()
	slog.Info("adaptive profile updated", "employee_id", obs.EmployeeID, "slot", slot)
	return true
}

func (l *Learner) state(employeeID int64) *learningState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[employeeID]
	if !ok {
		st = &learningState{}
		l.states[employeeID] = st
	}
	return st
}

// commit blends the candidate into the most similar enrolled slot. A nil
// vector with nil error means the employee has no enrolled slot.
func (l *Learner) commit(ctx context.Context, store ProfileStore, employeeID int64, candidate []float32) (int, []float32, error) {
	slots, err := store.EmbeddingSlots(ctx, employeeID)
	if err != nil {
		return 0, nil, err
	}

	best, bestSim := -1, -2.0
	for i, vec := range slots {
		if len(vec) != len(candidate) {
			continue
		}
		if sim := biometric.Cosine(vec, candidate); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return 0, nil, nil
	}

	updated := biometric.Blend(slots[best], candidate, l.cfg.Alpha)
	if err := store.UpdateEmbeddingSlot(ctx, employeeID, best, updated); err != nil {
		return 0, nil, err
	}
	return best, updated, nil
}

// Reset drops all in-memory learning state. Called when the gallery is
// reloaded, since stored profiles may have been re-enrolled. An observation
// already in flight finishes on its detached state.
func (l *Learner) Reset() {
	l.mu.Lock()
	clear(l.states)
	l.mu.Unlock()
}
