package rag

import (
	"context"
	"fmt"
	"strings"

	"mastewalai/pkg/ai"
	"mastewalai/pkg/domain"
)

// StreamFragmentSize is the rune length of answer fragments emitted over SSE.
const StreamFragmentSize = 60

const baseSystemPrompt = `You are a helpful assistant answering questions about the documents provided in the CONTEXT section.
Answer only from the supplied context and conversation history. If the context does not contain the answer, say so plainly instead of guessing.
Prices are quoted in Ethiopian Birr (ETB); keep that convention in answers.
Do not include citation markers or source numbers in your answer text.`

// Generator produces grounded answers from retrieved context and recent
// conversation history.
type Generator struct {
	llm ai.TextGenerator
}

func NewGenerator(llm ai.TextGenerator) *Generator {
	return &Generator{llm: llm}
}

// Generate builds the grounded prompt, calls the model, and returns the
// answer together with one citation per supplied context chunk, numbered in
// context order.
func (g *Generator) Generate(ctx context.Context, question string, contexts []domain.ContextChunk, history []domain.Message) (string, []domain.Citation, error) {
	system := baseSystemPrompt
	user := buildUserPrompt(question, contexts, history)

	answer, err := g.llm.GenerateText(ctx, system, user)
	if err != nil {
		return "", nil, fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)

	citations := make([]domain.Citation, 0, len(contexts))
	for i, c := range contexts {
		citations = append(citations, domain.Citation{
			SourceID:   i + 1,
			DocumentID: c.DocumentID,
			Metadata:   c.Metadata,
		})
	}
	return answer, citations, nil
}

func buildUserPrompt(question string, contexts []domain.ContextChunk, history []domain.Message) string {
	var sb strings.Builder

	sb.WriteString("CONTEXT:\n")
	if len(contexts) == 0 {
		sb.WriteString("No specific document context was found.\n")
	} else {
		for i, c := range contexts {
			source := c.Metadata["filename"]
			if source == "" {
				source = c.DocumentID
			}
			fmt.Fprintf(&sb, "[source %d] (%s)\n%s\n\n", i+1, source, c.Text)
		}
	}

	sb.WriteString("\nCONVERSATION HISTORY:\n")
	if len(history) == 0 {
		sb.WriteString("(no previous messages)\n")
	} else {
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(m.Role), m.Content)
		}
	}

	fmt.Fprintf(&sb, "\nUSER: %s\nASSISTANT:", question)
	return sb.String()
}

// SplitForStreaming cuts a completed answer into fixed-size rune fragments
// whose concatenation reproduces the answer exactly.
func SplitForStreaming(text string, size int) []string {
	if size <= 0 {
		size = StreamFragmentSize
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	fragments := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		fragments = append(fragments, string(runes[start:end]))
	}
	return fragments
}
