package recognition

import (
	"image"
	"image/color"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/your-org/attendance/internal/models"
)

var stateColors = map[models.DetectionState]color.NRGBA{
	models.DetectionRecognized:  {R: 0x2e, G: 0xcc, B: 0x40, A: 0xff},
	models.DetectionUnknown:     {R: 0xff, G: 0x41, B: 0x36, A: 0xff},
	models.DetectionPositioning: {R: 0xff, G: 0xdc, B: 0x00, A: 0xff},
	models.DetectionTooSmall:    {R: 0xaa, G: 0xaa, B: 0xaa, A: 0xff},
}

// Annotate draws detections onto a copy of preview. Detection coordinates are
// in frame space and are scaled to the preview width.
func Annotate(preview image.Image, snap Snapshot) *image.NRGBA {
	if snap.FrameSize.X <= 0 {
		return imaging.Clone(preview)
	}
	dc := gg.NewContextForImage(preview)
	scale := float64(dc.Width()) / float64(snap.FrameSize.X)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetLineWidth(2)

	for _, d := range snap.Detections {
		c, ok := stateColors[d.State]
		if !ok {
			c = stateColors[models.DetectionUnknown]
		}
		x0, y0 := float64(d.BBox[0])*scale, float64(d.BBox[1])*scale
		x1, y1 := float64(d.BBox[2])*scale, float64(d.BBox[3])*scale

		dc.SetColor(c)
		dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
		dc.Stroke()
		for _, kp := range d.Keypoints {
			dc.DrawCircle(float64(kp[0])*scale, float64(kp[1])*scale, 1.5)
		}
		dc.Fill()
		drawLabel(dc, x0, y0, label(d), c)
	}
	return imaging.Clone(dc.Image())
}

func label(d models.Detection) string {
	switch d.State {
	case models.DetectionRecognized:
		return d.Name + " " + strconv.Itoa(int(d.Confidence*100)) + "%"
	case models.DetectionPositioning:
		return "move to center"
	case models.DetectionTooSmall:
		return "come closer"
	default:
		return "unknown"
	}
}

// drawLabel puts text on a filled tag above (x, y), or below it when the tag
// would leave the image.
func drawLabel(dc *gg.Context, x, y float64, text string, bg color.Color) {
	face := basicfont.Face7x13
	w, _ := dc.MeasureString(text)
	width := w + 4
	height := float64(face.Height + 2)

	top := y - height
	if top < 0 {
		top = y
	}
	dc.SetColor(bg)
	dc.DrawRectangle(x, top, width, height)
	dc.Fill()

	dc.SetColor(color.Black)
	dc.DrawString(text, x+2, top+float64(face.Ascent+1))
}
