package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"podforge/internal/pipeline"
	"podforge/internal/queue"
)

type fakeGenerator struct {
	failIndexes map[int]bool
	err         error
	prompts     []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, count int) ([]pipeline.GeneratedImage, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]pipeline.GeneratedImage, 0, count)
	for i := 0; i < count; i++ {
		if f.failIndexes[i] {
			out = append(out, pipeline.GeneratedImage{Index: i, Err: fmt.Errorf("image %d failed", i)})
			continue
		}
		out = append(out, pipeline.GeneratedImage{Index: i, Data: []byte(fmt.Sprintf("png-%d", i)), ContentType: "image/png", Seed: int64(100 + i)})
	}
	return out, nil
}

type memoryAssets struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newMemoryAssets() *memoryAssets {
	return &memoryAssets{objects: make(map[string][]byte)}
}

func (m *memoryAssets) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://assets.test/" + key, nil
}

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) Process(_ context.Context, img pipeline.SourceImage, productType string) (pipeline.Processed, error) {
	f.calls++
	if f.err != nil {
		return pipeline.Processed{}, f.err
	}
	return pipeline.Processed{
		Transparent: []byte("transparent"),
		ContentType: "image/png",
		MockupURLs:  []string{fmt.Sprintf("https://mockups.test/%s/%d.png", productType, img.Index)},
	}, nil
}

type fakeTarget struct {
	name   string
	err    error
	drafts []pipeline.ProductDraft
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Publish(_ context.Context, draft pipeline.ProductDraft) (pipeline.Listing, error) {
	f.drafts = append(f.drafts, draft)
	if f.err != nil {
		return pipeline.Listing{}, f.err
	}
	id := fmt.Sprintf("%s-%s-%d", f.name, draft.ProductType, len(f.drafts))
	return pipeline.Listing{ProductID: id, URL: "https://" + f.name + ".test/" + id, Published: draft.Publish}, nil
}

type fakeSynth struct {
	prompt string
	err    error
}

func (f fakeSynth) Synthesize(context.Context, queue.ThemeConfig) (string, error) {
	return f.prompt, f.err
}

var errBoom = errors.New("boom")
