package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/pkg/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, r *gin.Engine, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "face.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

type staticPinger struct{ err error }

func (p staticPinger) Ping(context.Context) error { return p.err }

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
	}{
		{
			name:       "all healthy",
			checks:     map[string]Pinger{"postgres": staticPinger{}, "nats": PingerFunc(func() error { return nil })},
			wantStatus: http.StatusOK,
		},
		{
			name:       "minio down",
			checks:     map[string]Pinger{"postgres": staticPinger{}, "minio": staticPinger{err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler(tt.checks)
			r := gin.New()
			r.GET("/readyz", h.Readyz)

			w := serve(t, r, http.MethodGet, "/readyz", nil, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp struct {
				Checks map[string]string `json:"checks"`
			}
			decode(t, w, &resp)
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}

type fakeRecognizer struct {
	detections []models.Detection
	calls      int
	size       image.Point
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image) []models.Detection {
	f.calls++
	f.size = img.Bounds().Size()
	return f.detections
}

func TestRecognize(t *testing.T) {
	id := int64(4)
	rec := &fakeRecognizer{detections: []models.Detection{{
		State:      models.DetectionRecognized,
		EmployeeID: &id,
		Name:       "Dee",
		Confidence: 0.91,
	}}}
	r := gin.New()
	r.POST("/recognize", NewRecognitionHandler(rec).Recognize)

	body, ct := multipartImage(t, "image", testJPEG(t, 64, 48))
	w := serve(t, r, http.MethodPost, "/recognize", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp dto.RecognizeResponse
	decode(t, w, &resp)
	if resp.Width != 64 || resp.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", resp.Width, resp.Height)
	}
	if len(resp.Detections) != 1 || resp.Detections[0].EmployeeID == nil || *resp.Detections[0].EmployeeID != 4 {
		t.Errorf("detections = %+v", resp.Detections)
	}
}

func TestRecognizeBadInput(t *testing.T) {
	rec := &fakeRecognizer{}
	r := gin.New()
	r.POST("/recognize", NewRecognitionHandler(rec).Recognize)

	w := serve(t, r, http.MethodPost, "/recognize", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file: status = %d, want 400", w.Code)
	}

	body, ct := multipartImage(t, "image", []byte("not an image"))
	w = serve(t, r, http.MethodPost, "/recognize", body, ct)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid image: status = %d, want 400", w.Code)
	}
	if rec.calls != 0 {
		t.Errorf("recognizer called %d times on bad input", rec.calls)
	}
}

func TestRecognizeNoFaces(t *testing.T) {
	r := gin.New()
	r.POST("/recognize", NewRecognitionHandler(&fakeRecognizer{}).Recognize)

	body, ct := multipartImage(t, "image", testJPEG(t, 32, 32))
	w := serve(t, r, http.MethodPost, "/recognize", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"detections":[]`)) {
		t.Errorf("body = %s, want empty detections array", w.Body.String())
	}
}

func TestGalleryReload(t *testing.T) {
	var broadcasts int
	var reloadErr error
	h := NewGalleryHandler(func(context.Context) (int, error) {
		return 12, reloadErr
	}, func() error {
		broadcasts++
		return nil
	})
	r := gin.New()
	r.POST("/gallery/reload", h.Reload)

	w := serve(t, r, http.MethodPost, "/gallery/reload", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Entries int `json:"entries"`
	}
	decode(t, w, &resp)
	if resp.Entries != 12 || broadcasts != 1 {
		t.Errorf("entries = %d, broadcasts = %d", resp.Entries, broadcasts)
	}

	reloadErr = errors.New("db down")
	w = serve(t, r, http.MethodPost, "/gallery/reload", nil, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if broadcasts != 1 {
		t.Errorf("failed reload was broadcast")
	}
}
