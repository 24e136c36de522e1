package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"recognition-server/faces"
	"recognition-server/handlers"
	"recognition-server/stats"
	"recognition-server/utils"
)

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := stats.New()
	model := faces.NewModel(faces.Options{Backend: "onnx", DetSize: 640})
	router := newRouter(handlers.New(model, counters), counters)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"model_loaded":false`) {
		t.Errorf("/health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(utils.RequestIDHeader) == "" {
		t.Errorf("missing %s header", utils.RequestIDHeader)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/detect_faces", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("/detect_faces before load = %d, want 503", w.Code)
	}
	if got := counters.Snapshot()["POST /detect_faces"]; got.Count != 1 {
		t.Errorf("stats = %+v", got)
	}
}

func Test_tlsHandler(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})
	tests := []struct {
		name    string
		timeout time.Duration
		handler http.Handler
		want    int
	}{
		{"times out", 20 * time.Millisecond, slow, http.StatusServiceUnavailable},
		{"fast enough", time.Second, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tlsHandler(tt.handler, tt.timeout).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func Test_awaitDrain(t *testing.T) {
	bindErr := errors.New("listen tcp :443: bind: permission denied")
	tests := []struct {
		name string
		send bool
		sent error
		want error
	}{
		{"drained", true, http.ErrServerClosed, nil},
		{"server error", true, bindErr, bindErr},
		{"still draining", false, nil, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errc := make(chan error, 1)
			if tt.send {
				errc <- tt.sent
			}
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			if err := awaitDrain(ctx, errc); !errors.Is(err, tt.want) {
				t.Errorf("awaitDrain() = %v, want %v", err, tt.want)
			}
		})
	}
}
