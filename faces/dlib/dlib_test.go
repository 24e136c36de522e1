//go:build dlib

package dlib

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/Kagami/go-face"

	"recognition-server/faces"
)

func Test_toFaces(t *testing.T) {
	var desc face.Descriptor
	desc[0], desc[127] = 0.25, -0.5
	found := []face.Face{{
		Rectangle:  image.Rect(10, 20, 60, 80),
		Descriptor: desc,
	}}
	got := toFaces(found, 0.5)
	if len(got) != 1 {
		t.Fatalf("toFaces() returned %d faces", len(got))
	}
	if want := (faces.BBox{20, 40, 120, 160}); got[0].BBox != want {
		t.Errorf("BBox = %v, want %v", got[0].BBox, want)
	}
	if len(got[0].Embedding) != embeddingSize || got[0].Embedding[0] != 0.25 || got[0].Embedding[127] != -0.5 {
		t.Errorf("Embedding not copied: len=%d", len(got[0].Embedding))
	}
	if got[0].DetScore != nil {
		t.Errorf("dlib faces carry no detection score")
	}
}

func Test_encodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	data, err := encodeJPEG(img)
	if err != nil {
		t.Fatalf("encodeJPEG() error = %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width != 16 || cfg.Height != 8 {
		t.Errorf("encoded image config = %+v, %v", cfg, err)
	}
}

func TestNew_missingModels(t *testing.T) {
	if _, err := New(faces.Options{ModelsDir: t.TempDir()}); err == nil {
		t.Errorf("New() expected an error without model files")
	}
}
