package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"recognition-server/faces"
	"recognition-server/logger"
	"recognition-server/utils"
)

type FaceRecord struct {
	BBox      [4]int    `json:"bbox"`
	Embedding []float32 `json:"embedding"`
	DetScore  *float64  `json:"det_score"`
}

type DetectResponse struct {
	Faces     []FaceRecord `json:"faces"`
	Count     int          `json:"count"`
	ImageSize [2]int       `json:"image_size"`
}

// DetectFaces accepts a multipart upload in the "file" field and returns
// one record (box, embedding, detection score) per face found
func (h *Handler) DetectFaces(c *gin.Context) {
	if !h.Model.Ready() {
		c.JSON(http.StatusServiceUnavailable, NotLoadedResponse)
		return
	}
	header, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, TooLargeResponse)
			return
		}
		c.JSON(http.StatusUnprocessableEntity, MissingFileResponse)
		return
	}
	if !utils.IsImageContentType(header.Header.Get("Content-Type")) {
		c.JSON(http.StatusBadRequest, NotImageResponse)
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ReadErrorResponse)
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ReadErrorResponse)
		return
	}
	decoded, err := utils.DecodeImage(data)
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Warn("Could not decode upload")
		c.JSON(http.StatusBadRequest, DecodeErrorResponse)
		return
	}

	logger.Debug(logger.Fields{
		"format": decoded.Format,
		"width":  decoded.Width,
		"height": decoded.Height,
		"bytes":  len(data),
	}, "Decoded upload")

	found, err := h.Model.Analyze(c.Request.Context(), decoded.Image)
	if errors.Is(err, faces.ErrNotLoaded) {
		// Closed while this request was decoding
		c.JSON(http.StatusServiceUnavailable, NotLoadedResponse)
		return
	}
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Face analysis failed")
		c.JSON(http.StatusInternalServerError, Response{err.Error()})
		return
	}

	result := DetectResponse{
		Faces:     toRecords(found),
		Count:     len(found),
		ImageSize: [2]int{decoded.Width, decoded.Height},
	}
	logger.FromContext(c.Request.Context()).
		WithField("format", decoded.Format).
		Infof("Detected %d faces in %s", result.Count, header.Filename)
	c.JSON(http.StatusOK, result)
}

func toRecords(found []faces.Face) []FaceRecord {
	result := make([]FaceRecord, 0, len(found))
	for _, f := range found {
		record := FaceRecord{
			BBox:      f.BBox.Ints(),
			Embedding: f.Embedding,
		}
		if record.Embedding == nil {
			record.Embedding = []float32{}
		}
		if f.DetScore != nil {
			score := float64(*f.DetScore)
			record.DetScore = &score
		}
		result = append(result, record)
	}
	return result
}
