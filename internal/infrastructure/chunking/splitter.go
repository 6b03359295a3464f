package chunking

import "strings"

// Splitter packs paragraphs into chunks of at most ChunkSize runes. Paragraphs
// longer than ChunkSize are cut into overlapping windows.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	var out []string
	var current []rune
	flush := func() {
		if chunk := strings.TrimSpace(string(current)); chunk != "" {
			out = append(out, chunk)
		}
		current = current[:0]
	}

	for _, para := range paragraphs(text) {
		runes := []rune(para)
		if len(runes) > s.ChunkSize {
			flush()
			out = append(out, s.window(runes)...)
			continue
		}
		if len(current) > 0 && len(current)+2+len(runes) > s.ChunkSize {
			flush()
		}
		if len(current) > 0 {
			current = append(current, '\n', '\n')
		}
		current = append(current, runes...)
	}
	flush()
	return out
}

func (s *Splitter) window(runes []rune) []string {
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
