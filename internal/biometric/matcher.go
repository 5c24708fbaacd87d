package biometric

import (
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

// Match is the matching verdict for one probe embedding.
type Match struct {
	Candidate
	Threshold float64
	Accepted  bool
}

// Matcher gates detections by size and position and matches them against a
// Gallery with a liveness-tiered acceptance threshold.
type Matcher struct {
	gallery     *Gallery
	tiers       []config.Tier
	minFaceSize float32
	centerZone  float32
}

// NewMatcher expects tiers ordered by decreasing MinLiveness, as enforced by
// config validation.
func NewMatcher(cfg config.MatchingConfig, gallery *Gallery) *Matcher {
	return &Matcher{
		gallery:     gallery,
		tiers:       append([]config.Tier(nil), cfg.Tiers...),
		minFaceSize: float32(cfg.MinFaceSize),
		centerZone:  float32(cfg.CenterZone),
	}
}

// Threshold returns the similarity cutoff for a liveness score. Higher
// liveness never yields a higher cutoff.
func (m *Matcher) Threshold(liveness float64) float64 {
	for _, t := range m.tiers {
		if liveness > t.MinLiveness {
			return t.Cutoff
		}
	}
	return m.tiers[len(m.tiers)-1].Cutoff
}

// Gate reports whether a face box is eligible for matching within a frame of
// the given size. The returned state is too_small or positioning when not.
func (m *Matcher) Gate(bbox [4]float32, frameW, frameH int) (models.DetectionState, bool) {
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w < m.minFaceSize || h < m.minFaceSize {
		return models.DetectionTooSmall, false
	}

	cx := (bbox[0] + bbox[2]) / 2
	cy := (bbox[1] + bbox[3]) / 2
	fw, fh := float32(frameW), float32(frameH)
	margin := (1 - m.centerZone) / 2
	if cx < fw*margin || cx > fw*(1-margin) || cy < fh*margin || cy > fh*(1-margin) {
		return models.DetectionPositioning, false
	}
	return "", true
}

// Match finds the closest enrolled embedding and applies the tiered cutoff.
// An empty gallery yields a rejected zero Match.
func (m *Matcher) Match(embedding []float32, liveness float64) Match {
	threshold := m.Threshold(liveness)
	c, ok := m.gallery.Best(embedding)
	if !ok {
		return Match{Threshold: threshold}
	}
	return Match{
		Candidate: c,
		Threshold: threshold,
		Accepted:  c.Similarity > threshold,
	}
}
