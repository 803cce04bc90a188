package rag

import (
	"context"
	"strings"

	"mastewalai/pkg/domain"
)

// fakeEmbedder maps each text to a deterministic vector; identical texts get
// identical vectors so similarity ranking is predictable in tests.
type fakeEmbedder struct {
	fail bool
	// vectors overrides the derived vector per exact text.
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = deriveVector(text)
	}
	return out, nil
}

func deriveVector(text string) []float32 {
	var a, b float32
	for _, r := range text {
		a += float32(r % 7)
		b += float32(r % 13)
	}
	return []float32{a + 1, b + 1}
}

// fakeGenerator records the prompts it saw and returns a canned answer.
type fakeGenerator struct {
	answer      string
	err         error
	lastSystem  string
	lastUser    string
	userPrompts []string
}

func (f *fakeGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	f.userPrompts = append(f.userPrompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	if f.answer == "" {
		return "canned answer", nil
	}
	return f.answer, nil
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

func contextTexts(chunks []domain.ContextChunk) []string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return texts
}
