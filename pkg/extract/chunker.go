package extract

import "strings"

// Default chunking parameters for ingestion.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Boundary preference order: paragraph breaks, then line breaks, then
// sentence breaks, then words, then arbitrary character positions.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Split cuts text into ordered chunks of at most size runes, each overlapping
// the previous one by roughly overlap runes. Boundaries prefer paragraph and
// sentence breaks over mid-word cuts. The same input always yields the same
// sequence, and no chunk is ever empty.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return splitRecursive(text, size, overlap, separators)
}

func splitRecursive(text string, size, overlap int, seps []string) []string {
	if runeLen(text) <= size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	sep, rest := chooseSeparator(text, seps)
	if sep == "" {
		return hardSplit(text, size, overlap)
	}

	// Pieces keep their trailing separator so merged chunks reconstruct the
	// original spacing.
	pieces := strings.SplitAfter(text, sep)
	var chunks []string
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			chunks = append(chunks, mergePieces(pending, size, overlap)...)
			pending = nil
		}
	}
	for _, piece := range pieces {
		if runeLen(piece) < size {
			pending = append(pending, piece)
			continue
		}
		flush()
		chunks = append(chunks, splitRecursive(piece, size, overlap, rest)...)
	}
	flush()
	return chunks
}

// mergePieces greedily packs small pieces into chunks of at most size runes.
// When a chunk is emitted, trailing pieces totalling at most overlap runes are
// carried into the next chunk to preserve cross-boundary context.
func mergePieces(pieces []string, size, overlap int) []string {
	var chunks []string
	var window []string
	total := 0
	for _, piece := range pieces {
		pl := runeLen(piece)
		if total+pl > size && total > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(window) > 0 && (total > overlap || total+pl > size) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += pl
	}
	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// hardSplit cuts at arbitrary rune positions when no better boundary exists.
func hardSplit(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			chunks = append(chunks, part)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func chooseSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

func runeLen(s string) int {
	return len([]rune(s))
}
