package generator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
)

// onePixelPNG is a deterministic 1x1 PNG, the same on every call, so tests
// get byte-identical output regardless of prompt or instruction content.
func onePixelPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// Mock is a deterministic backend used in tests and ORCH_MOCK_GENERATOR mode.
type Mock struct{}

// NewMock constructs a Mock generator.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) GenerateImages(_ context.Context, _ string, count int, _ Options) ([]GeneratedImage, error) {
	return repeatPixel(count), nil
}

func (m *Mock) EditImages(_ context.Context, _, _ string, count int, _ Options) ([]GeneratedImage, error) {
	return repeatPixel(count), nil
}

func repeatPixel(count int) []GeneratedImage {
	pixel := onePixelPNG()
	images := make([]GeneratedImage, count)
	for i := range images {
		images[i] = GeneratedImage{Bytes: pixel, MimeType: "image/png"}
	}
	return images
}
