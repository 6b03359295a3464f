package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

// ContextSpecialist finds previously validated documents similar to the request
// excerpt. Each chunk of the excerpt is searched separately and the hit lists are
// fused.
type ContextSpecialist struct {
	embedder  ports.Embedder
	index     ports.PrecedentIndex
	chunker   ports.Chunker
	limit     int
	maxChunks int
}

type ContextOptions struct {
	Limit     int
	MaxChunks int
}

func NewContextSpecialist(embedder ports.Embedder, index ports.PrecedentIndex, chunker ports.Chunker, opts ContextOptions) *ContextSpecialist {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = 4
	}
	return &ContextSpecialist{
		embedder:  embedder,
		index:     index,
		chunker:   chunker,
		limit:     opts.Limit,
		maxChunks: opts.MaxChunks,
	}
}

func (s *ContextSpecialist) Role() domain.Role { return domain.RoleContext }

func (s *ContextSpecialist) Handle(ctx context.Context, req domain.SpecialistRequest) (domain.SpecialistPayload, error) {
	chunks := s.chunker.Split(req.Payload.Excerpt)
	if len(chunks) == 0 {
		return domain.SpecialistPayload{}, failure(domain.RoleContext, errors.New("excerpt is empty"))
	}
	if len(chunks) > s.maxChunks {
		chunks = chunks[:s.maxChunks]
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return domain.SpecialistPayload{}, fmt.Errorf("embed excerpt: %w", err)
	}

	lists := make([][]domain.Precedent, 0, len(vectors))
	for _, vec := range vectors {
		hits, err := s.index.Search(ctx, vec, s.limit, req.Payload.Category)
		if err != nil {
			return domain.SpecialistPayload{}, fmt.Errorf("search precedents: %w", err)
		}
		lists = append(lists, hits)
	}

	fused, best := fusePrecedentsRRF(lists, defaultRRFK)
	if len(fused) == 0 {
		return domain.SpecialistPayload{}, failure(domain.RoleContext, errors.New("no precedents"))
	}
	if len(fused) > s.limit {
		fused = fused[:s.limit]
	}

	findings := make([]string, 0, len(fused))
	refs := make([]string, 0, len(fused))
	seen := make(map[string]struct{}, len(fused))
	for _, p := range fused {
		findings = append(findings, fmt.Sprintf("%s (%s): %s", p.Name, p.Category, trimText(p.Text, 280)))
		if _, ok := seen[p.DocumentID]; !ok {
			seen[p.DocumentID] = struct{}{}
			refs = append(refs, p.DocumentID)
		}
	}

	slog.Debug("context_precedents", "correlation_id", req.CorrelationID, "hits", len(fused), "best_score", best)
	return domain.SpecialistPayload{
		Summary:    fmt.Sprintf("%d precedent excerpts from %d validated documents", len(fused), len(refs)),
		Findings:   findings,
		References: refs,
		Quality:    clamp01(best),
	}, nil
}

func failure(role domain.Role, err error) error {
	return domain.WrapError(domain.ErrSpecialistFailure, string(role)+" specialist", err)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func trimText(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
