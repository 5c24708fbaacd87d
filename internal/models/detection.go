package models

type DetectionState string

const (
	DetectionRecognized  DetectionState = "recognized"
	DetectionUnknown     DetectionState = "unknown"
	DetectionPositioning DetectionState = "positioning"
	DetectionTooSmall    DetectionState = "too_small"
)

// Detection is the per-frame outcome for one detected face.
type Detection struct {
	BBox       [4]float32     `json:"bbox"`
	Keypoints  [5][2]float32  `json:"keypoints"`
	Embedding  []float32      `json:"-"`
	Liveness   float64        `json:"liveness"`
	State      DetectionState `json:"state"`
	EmployeeID *int64         `json:"employee_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Confidence float64        `json:"confidence"`
}

// Recognized reports whether the face matched an enrolled employee.
func (d *Detection) Recognized() bool {
	return d.State == DetectionRecognized && d.EmployeeID != nil
}

// Clone returns a copy that shares no slices with d.
func (d Detection) Clone() Detection {
	if d.Embedding != nil {
		d.Embedding = append([]float32(nil), d.Embedding...)
	}
	if d.EmployeeID != nil {
		id := *d.EmployeeID
		d.EmployeeID = &id
	}
	return d
}
