package handlers

import (
	"context"
	"image"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/vision"
	"github.com/your-org/attendance/pkg/dto"
)

const maxUploadSize = 10 << 20

// FaceRecognizer runs detection and matching on a still image.
type FaceRecognizer interface {
	Recognize(ctx context.Context, img image.Image) []models.Detection
}

type RecognitionHandler struct {
	recognizer FaceRecognizer
}

func NewRecognitionHandler(recognizer FaceRecognizer) *RecognitionHandler {
	return &RecognitionHandler{recognizer: recognizer}
}

// Recognize identifies the faces in an uploaded image. Nothing is logged.
func (h *RecognitionHandler) Recognize(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	if file.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	img, err := vision.DecodeImage(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image"})
		return
	}

	detections := h.recognizer.Recognize(c.Request.Context(), img)
	if detections == nil {
		detections = []models.Detection{}
	}
	b := img.Bounds()
	c.JSON(http.StatusOK, dto.RecognizeResponse{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Detections: detections,
	})
}
