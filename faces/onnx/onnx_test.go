package onnx

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	ort "github.com/yalue/onnxruntime_go"

	"recognition-server/faces"
)

func Test_decodeStride(t *testing.T) {
	// 32x32 canvas at stride 16 -> 2x2 cells, 2 anchors each
	scores := []float32{0.1, 0.2, 0.3, 0.95, 0.1, 0.1, 0.6, 0.1}
	boxes := make([]float32, 8*4)
	kps := make([]float32, 8*10)
	// anchor 3: cell 1 -> centre (16, 0)
	copy(boxes[3*4:], []float32{0.5, 0, 1, 2})
	for p := 0; p < 5; p++ {
		kps[3*10+2*p] = float32(p)
		kps[3*10+2*p+1] = 1
	}
	// anchor 6: cell 3 -> centre (16, 16)
	copy(boxes[6*4:], []float32{1, 1, 1, 1})

	got := decodeStride(scores, boxes, kps, 16, 32, 2, 0.5)
	if len(got) != 2 {
		t.Fatalf("decodeStride() returned %d detections, want 2", len(got))
	}
	if want := (faces.BBox{8, 0, 32, 32}); got[0].box != want {
		t.Errorf("box[0] = %v, want %v", got[0].box, want)
	}
	if got[0].score != 0.95 {
		t.Errorf("score[0] = %v", got[0].score)
	}
	wantKps := []faces.Landmark{{16, 16}, {32, 16}, {48, 16}, {64, 16}, {80, 16}}
	if !reflect.DeepEqual(got[0].kps, wantKps) {
		t.Errorf("kps[0] = %v, want %v", got[0].kps, wantKps)
	}
	if want := (faces.BBox{0, 0, 32, 32}); got[1].box != want {
		t.Errorf("box[1] = %v, want %v", got[1].box, want)
	}
}

func Test_decodeStride_belowThreshold(t *testing.T) {
	scores := []float32{0.1, 0.49}
	got := decodeStride(scores, make([]float32, 8), make([]float32, 20), 8, 8, 2, 0.5)
	if len(got) != 0 {
		t.Errorf("decodeStride() = %v, want none", got)
	}
}

func Test_outputShape(t *testing.T) {
	tests := []struct {
		name    string
		batched bool
		stride  int
		width   int
		want    ort.Shape
	}{
		{"scores stride 8", false, 8, 1, ort.NewShape(12800, 1)},
		{"boxes stride 32", false, 32, 4, ort.NewShape(800, 4)},
		{"batched kps stride 16", true, 16, 10, ort.NewShape(1, 3200, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &scrfd{size: 640, numAnchors: 2, batched: tt.batched}
			if got := d.outputShape(tt.stride, tt.width); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("outputShape() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_withDefaults(t *testing.T) {
	got := withDefaults(faces.Options{ModelsDir: "/models"})
	if got.DetSize != 640 || got.DetThreshold != 0.5 || got.NMSThreshold != 0.4 {
		t.Errorf("withDefaults() = %+v", got)
	}
	if got.DetModel != "det_10g.onnx" || got.RecModel != "w600k_r50.onnx" {
		t.Errorf("withDefaults() models = %s, %s", got.DetModel, got.RecModel)
	}
	kept := withDefaults(faces.Options{DetSize: 320, DetThreshold: 0.3})
	if kept.DetSize != 320 || kept.DetThreshold != 0.3 {
		t.Errorf("withDefaults() overrode explicit values: %+v", kept)
	}
}

func Test_modelPath(t *testing.T) {
	opts := faces.Options{ModelsDir: "models", ModelName: "buffalo_l"}
	if got, want := modelPath(opts, "det_10g.onnx"), filepath.Join("models", "buffalo_l", "det_10g.onnx"); got != want {
		t.Errorf("modelPath() = %q, want %q", got, want)
	}
	if got := modelPath(opts, "/opt/scrfd.onnx"); got != "/opt/scrfd.onnx" {
		t.Errorf("modelPath() absolute = %q", got)
	}
}

func Test_newSCRFD_badSize(t *testing.T) {
	if _, err := newSCRFD("missing.onnx", faces.Options{DetSize: 300}); err == nil {
		t.Errorf("newSCRFD() should reject sizes that are not multiples of 32")
	}
}

func TestNew_missingModels(t *testing.T) {
	_, err := New(faces.Options{ModelsDir: t.TempDir(), ModelName: "buffalo_l"})
	if err == nil {
		t.Fatalf("New() expected an error for a missing model pack")
	}
}

func TestRegistered(t *testing.T) {
	_, err := faces.Open(faces.Options{Backend: Name, ModelsDir: t.TempDir()})
	if err == nil {
		t.Fatalf("Open() expected an error for a missing model pack")
	}
	found := false
	for _, n := range faces.Backends() {
		found = found || n == Name
	}
	if !found {
		t.Errorf("onnx backend is not registered: %v", faces.Backends())
	}
}

func Test_configureProviders(t *testing.T) {
	tests := []struct {
		name       string
		useGPU     bool
		appendErr  error
		want       string
		wantCalled bool
	}{
		{"cpu", false, nil, cpuProvider, false},
		{"cuda", true, nil, cudaProvider, true},
		{"cuda unavailable", true, errors.New("CUDA execution provider is not enabled in this build"), cpuProvider, true},
	}
	defer func(orig func(*ort.SessionOptions, int) error) { appendCUDA = orig }(appendCUDA)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			appendCUDA = func(so *ort.SessionOptions, deviceID int) error {
				called = true
				if deviceID != 1 {
					t.Errorf("deviceID = %d, want 1", deviceID)
				}
				return tt.appendErr
			}
			got := configureProviders(nil, faces.Options{UseGPU: tt.useGPU, GPUDeviceID: 1})
			if got != tt.want || called != tt.wantCalled {
				t.Errorf("configureProviders() = %q (called %v), want %q (called %v)", got, called, tt.want, tt.wantCalled)
			}
		})
	}
}
