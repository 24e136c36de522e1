package handlers

import (
	"recognition-server/faces"
	"recognition-server/stats"
)

const (
	serviceName    = "recognition"
	serviceMessage = "InsightFace Recognition Server"
	serviceVersion = "1.0.0"
	uploadField    = "file"
)

type Response struct {
	Detail string `json:"detail"`
}

var (
	// Predefined errors
	NotLoadedResponse   = Response{"Model not loaded"}
	NotImageResponse    = Response{"File must be an image"}
	DecodeErrorResponse = Response{"Could not decode image"}
	MissingFileResponse = Response{"Field required: " + uploadField}
	TooLargeResponse    = Response{"Upload too large"}
	ReadErrorResponse   = Response{"Could not read upload"}
	endpoints           = []string{"/health", "/detect_faces", "/stats"}
)

// Handler serves the HTTP API on top of a shared model handle
type Handler struct {
	Model    *faces.Model
	Counters *stats.Registry
	Backend  string
	UseGPU   bool
	DetSize  int
}

func New(model *faces.Model, counters *stats.Registry) *Handler {
	opts := model.Options()
	return &Handler{
		Model:    model,
		Counters: counters,
		Backend:  opts.Backend,
		UseGPU:   opts.UseGPU,
		DetSize:  opts.DetSize,
	}
}
