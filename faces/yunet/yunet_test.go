//go:build opencv

package yunet

import (
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"recognition-server/faces"
)

func Test_fitScale(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		maxSide int
		want    float32
	}{
		{"small", 320, 240, 640, 1},
		{"landscape", 1280, 720, 640, 0.5},
		{"portrait", 600, 2400, 600, 0.25},
		{"no limit", 4000, 3000, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fitScale(tt.w, tt.h, tt.maxSide); got != tt.want {
				t.Errorf("fitScale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_parseRow(t *testing.T) {
	row := gocv.NewMatWithSize(1, 15, gocv.MatTypeCV32F)
	defer row.Close()
	values := []float32{10, 20, 30, 40, 15, 30, 35, 30, 25, 40, 18, 50, 32, 50, 0.92}
	for i, v := range values {
		row.SetFloatAt(0, i, v)
	}
	f := parseRow(row)
	if want := (faces.BBox{10, 20, 40, 60}); f.BBox != want {
		t.Errorf("BBox = %v, want %v", f.BBox, want)
	}
	if len(f.Landmarks) != 5 || f.Landmarks[2] != (faces.Landmark{25, 40}) {
		t.Errorf("Landmarks = %v", f.Landmarks)
	}
}

func Test_modelPath(t *testing.T) {
	if got := modelPath("models", "", defaultDetModel); got != filepath.Join("models", defaultDetModel) {
		t.Errorf("modelPath() = %q", got)
	}
	if got := modelPath("models", "/abs/yunet.onnx", defaultDetModel); got != "/abs/yunet.onnx" {
		t.Errorf("modelPath() = %q", got)
	}
}

func TestNew_missingModels(t *testing.T) {
	if _, err := New(faces.Options{ModelsDir: t.TempDir()}); err == nil {
		t.Errorf("New() expected an error without model files")
	}
}
