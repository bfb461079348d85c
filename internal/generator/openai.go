package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is the real image-generation backend, demonstrating the pluggable
// seam is exercised and not just an interface. It uses the images endpoint
// for generation and the edit endpoint for instruction-guided edits.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI constructs an OpenAI-backed Generator.
func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey), model: model}
}

func sizeFor(aspectRatio string) string {
	switch aspectRatio {
	case "portrait":
		return "1024x1792"
	case "landscape":
		return "1792x1024"
	default:
		return "1024x1024"
	}
}

func (o *OpenAI) GenerateImages(ctx context.Context, prompt string, count int, opts Options) ([]GeneratedImage, error) {
	req := openai.ImageRequest{
		Model:          o.model,
		Prompt:         prompt,
		N:              count,
		Size:           sizeFor(opts.AspectRatio),
		Quality:        opts.Quality,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := o.client.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai image generation failed: %w", err)
	}
	return decodeImages(resp.Data)
}

func (o *OpenAI) EditImages(ctx context.Context, sourceBase64, instruction string, count int, opts Options) ([]GeneratedImage, error) {
	raw, err := base64.StdEncoding.DecodeString(sourceBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid source image: %w", err)
	}

	req := openai.ImageEditRequest{
		Image:          bytes.NewReader(raw),
		Prompt:         instruction,
		N:              count,
		Size:           sizeFor(opts.AspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := o.client.CreateEditImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai image edit failed: %w", err)
	}
	return decodeImages(resp.Data)
}

func decodeImages(data []openai.ImageResponseDataInner) ([]GeneratedImage, error) {
	images := make([]GeneratedImage, len(data))
	for i, d := range data {
		raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decoding generated image %d: %w", i, err)
		}
		images[i] = GeneratedImage{Bytes: raw, MimeType: "image/png"}
	}
	return images, nil
}
