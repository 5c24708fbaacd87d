package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	detInputSize     = 640
	anchorsPerCell   = 2
	detNMSThreshold  = 0.4
	detKeypointCount = 5
)

// detection is a raw RetinaFace result in original image coordinates.
type detection struct {
	bbox      [4]float32
	score     float32
	keypoints [detKeypointCount][2]float32
}

// strideHead holds the three output tensors of one feature-map stride.
type strideHead struct {
	stride    int
	scores    *ort.Tensor[float32]
	boxes     *ort.Tensor[float32]
	keypoints *ort.Tensor[float32]
}

// Detector runs the RetinaFace det_10g model.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	heads     []strideHead
	threshold float32
}

// det_10g output names per stride: score, bbox, keypoints.
var detOutputs = []struct {
	stride                  int
	score, bbox, keypoints string
}{
	{8, "448", "451", "454"},
	{16, "471", "474", "477"},
	{32, "494", "497", "500"},
}

// NewDetector loads the RetinaFace model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create detector input tensor: %w", err)
	}

	d := &Detector{input: input, threshold: threshold}

	// Outputs are ordered scores, boxes, keypoints across all strides.
	var scoreNames, boxNames, kpNames []string
	var scoreVals, boxVals, kpVals []ort.Value
	for _, o := range detOutputs {
		cells := int64((detInputSize / o.stride) * (detInputSize / o.stride) * anchorsPerCell)
		h := strideHead{stride: o.stride}
		if h.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(cells, 1)); err == nil {
			if h.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(cells, 4)); err == nil {
				h.keypoints, err = ort.NewEmptyTensor[float32](ort.NewShape(cells, detKeypointCount*2))
			}
		}
		d.heads = append(d.heads, h)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create detector output tensors for stride %d: %w", o.stride, err)
		}
		scoreNames, boxNames, kpNames = append(scoreNames, o.score), append(boxNames, o.bbox), append(kpNames, o.keypoints)
		scoreVals, boxVals, kpVals = append(scoreVals, h.scores), append(boxVals, h.boxes), append(kpVals, h.keypoints)
	}

	names := append(append(scoreNames, boxNames...), kpNames...)
	values := append(append(scoreVals, boxVals...), kpVals...)

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{input}, values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect runs the model on a letterboxed CHW input. scale is the factor that
// was applied to the original image; origW/origH bound the returned boxes.
func (d *Detector) Detect(chw []float32, scale float32, origW, origH int) ([]detection, error) {
	copy(d.input.GetData(), chw)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	var dets []detection
	for _, h := range d.heads {
		dets = append(dets, decodeHead(h.stride, h.scores.GetData(), h.boxes.GetData(), h.keypoints.GetData(),
			d.threshold, scale, float32(origW), float32(origH))...)
	}
	return nms(dets, detNMSThreshold), nil
}

// decodeHead converts distance-encoded anchor outputs of one stride into boxes.
func decodeHead(stride int, scores, boxes, kps []float32, threshold, scale, maxW, maxH float32) []detection {
	var out []detection
	cellsPerRow := detInputSize / stride
	st := float32(stride)

	for idx, score := range scores {
		if score < threshold {
			continue
		}
		cell := idx / anchorsPerCell
		ax := float32(cell%cellsPerRow) * st
		ay := float32(cell/cellsPerRow) * st

		b := boxes[idx*4 : idx*4+4]
		det := detection{
			score: score,
			bbox: [4]float32{
				clampF((ax-b[0]*st)/scale, 0, maxW),
				clampF((ay-b[1]*st)/scale, 0, maxH),
				clampF((ax+b[2]*st)/scale, 0, maxW),
				clampF((ay+b[3]*st)/scale, 0, maxH),
			},
		}
		k := kps[idx*detKeypointCount*2 : (idx+1)*detKeypointCount*2]
		for i := 0; i < detKeypointCount; i++ {
			det.keypoints[i] = [2]float32{(ax + k[i*2]*st) / scale, (ay + k[i*2+1]*st) / scale}
		}
		out = append(out, det)
	}
	return out
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, h := range d.heads {
		for _, t := range []*ort.Tensor[float32]{h.scores, h.boxes, h.keypoints} {
			if t != nil {
				t.Destroy()
			}
		}
	}
}

// nms keeps the highest-scoring box of every overlapping group.
func nms(dets []detection, iouThreshold float32) []detection {
	sort.Slice(dets, func(i, j int) bool { return dets[i].score > dets[j].score })

	kept := dets[:0:0]
	for _, d := range dets {
		overlaps := false
		for _, k := range kept {
			if iou(d.bbox, k.bbox) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	ix := min(a[2], b[2]) - max(a[0], b[0])
	iy := min(a[3], b[3]) - max(a[1], b[1])
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
