package specialist

import (
	"fmt"
	"sort"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

const defaultRRFK = 60

type fusedPrecedent struct {
	precedent domain.Precedent
	score     float64
	best      float64
}

// fusePrecedentsRRF merges per-chunk result lists with reciprocal rank fusion. The
// returned Score is the fused rank score; best keeps the highest raw similarity.
func fusePrecedentsRRF(lists [][]domain.Precedent, rrfK int) ([]domain.Precedent, float64) {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]fusedPrecedent)
	var best float64
	for _, list := range lists {
		for rank, p := range list {
			key := precedentKey(p)
			c := acc[key]
			if c.precedent.DocumentID == "" && c.precedent.Text == "" {
				c.precedent = p
			}
			c.score += 1.0 / float64(rrfK+rank+1)
			c.best = max(c.best, p.Score)
			best = max(best, p.Score)
			acc[key] = c
		}
	}

	out := make([]domain.Precedent, 0, len(acc))
	for _, c := range acc {
		p := c.precedent
		p.Score = c.score
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, best
}

func precedentKey(p domain.Precedent) string {
	if p.DocumentID != "" {
		return fmt.Sprintf("%s:%d", p.DocumentID, p.ChunkIndex)
	}
	return p.Name + "|" + p.Text
}
