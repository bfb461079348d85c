// Package generator implements C3, the pluggable image generation seam:
// text->image and image+instruction->image, with reference-image
// pre-fetch shared across a batch.
package generator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// GeneratedImage is one raw image produced by a backend call.
type GeneratedImage struct {
	Bytes    []byte
	MimeType string
}

// Options bundles the per-call tuning knobs.
type Options struct {
	AspectRatio        string
	Quality            string
	ReferenceImageURLs []string
}

// Generator is the interface every image backend implements. Edit is
// optional: backends that only regenerate can return ErrEditUnsupported.
type Generator interface {
	GenerateImages(ctx context.Context, prompt string, count int, opts Options) ([]GeneratedImage, error)
	EditImages(ctx context.Context, sourceBase64, instruction string, count int, opts Options) ([]GeneratedImage, error)
}

// ErrEditUnsupported is returned by backends with no edit capability.
var ErrEditUnsupported = fmt.Errorf("generator: edit is not supported by this backend")

// FetchReferenceImages fetches every URL once and shares the bytes across
// a batch. A failed fetch skips that reference with a warning rather than
// failing the whole batch.
func FetchReferenceImages(ctx context.Context, client *http.Client, urls []string, onWarning func(url string, err error)) [][]byte {
	if client == nil {
		client = http.DefaultClient
	}

	results := make([][]byte, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			data, err := fetchOne(ctx, client, url)
			if err != nil {
				if onWarning != nil {
					onWarning(url, err)
				}
				return
			}
			results[i] = data
		}(i, url)
	}
	wg.Wait()

	out := make([][]byte, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func fetchOne(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference image fetch failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
