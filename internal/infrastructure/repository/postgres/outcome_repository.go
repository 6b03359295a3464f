package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// OutcomeRepository stores one outcome per document. Saving again replaces it.
type OutcomeRepository struct {
	db *sql.DB
}

func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

func (r *OutcomeRepository) Save(ctx context.Context, outcome *domain.AggregatedOutcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO outcomes (document_id, status, category, confidence, plan_id, body, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (document_id) DO UPDATE
SET status = EXCLUDED.status, category = EXCLUDED.category, confidence = EXCLUDED.confidence,
	plan_id = EXCLUDED.plan_id, body = EXCLUDED.body, created_at = EXCLUDED.created_at
`,
		outcome.DocumentID, string(outcome.Status), string(outcome.Assignment.Category),
		outcome.Assignment.Confidence, outcome.Plan.ID, body, outcome.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}
	return nil
}

func (r *OutcomeRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.AggregatedOutcome, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, `SELECT body FROM outcomes WHERE document_id = $1`, documentID).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrOutcomeNotFound, "get outcome", fmt.Errorf("document_id=%s", documentID))
		}
		return nil, fmt.Errorf("scan outcome: %w", err)
	}

	var outcome domain.AggregatedOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return &outcome, nil
}
