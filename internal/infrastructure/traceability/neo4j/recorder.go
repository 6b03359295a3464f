// Package neo4j records document -> category -> test traceability in a graph.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

type statement struct {
	query  string
	params map[string]any
}

type statementWriter interface {
	write(ctx context.Context, stmts []statement) error
}

type Recorder struct {
	driver neo4j.DriverWithContext
	writer statementWriter
}

func New(cfg Config) (*Recorder, error) {
	var auth neo4j.AuthToken
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	} else {
		auth = neo4j.NoAuth()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Recorder{
		driver: driver,
		writer: &sessionWriter{driver: driver, database: cfg.Database},
	}, nil
}

func (r *Recorder) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Recorder) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// RecordOutcome upserts the document, its category, and either the generated
// tests or the escalation with the roles it names. Re-recording is idempotent.
func (r *Recorder) RecordOutcome(ctx context.Context, doc *domain.Document, outcome *domain.AggregatedOutcome) error {
	if err := r.writer.write(ctx, buildStatements(doc, outcome)); err != nil {
		return domain.WrapError(domain.ErrTemporary, "record traceability", err)
	}
	return nil
}

func buildStatements(doc *domain.Document, outcome *domain.AggregatedOutcome) []statement {
	stmts := []statement{{
		query: `
MERGE (d:Document {id: $document_id})
SET d.name = $name, d.version = $version, d.status = $status, d.plan_id = $plan_id
MERGE (c:Category {name: $category})
SET c.gamp = $gamp
MERGE (d)-[r:CLASSIFIED_AS]->(c)
SET r.confidence = $confidence`,
		params: map[string]any{
			"document_id": doc.ID,
			"name":        doc.Name,
			"version":     doc.Metadata.Version,
			"status":      string(outcome.Status),
			"plan_id":     outcome.Plan.ID,
			"category":    string(outcome.Assignment.Category),
			"gamp":        outcome.Assignment.Category.GAMPLevel(),
			"confidence":  outcome.Assignment.Confidence,
		},
	}}

	if outcome.Artifact != nil {
		tests := make([]map[string]any, 0, len(outcome.Artifact.Suite.Tests))
		for _, tc := range outcome.Artifact.Suite.Tests {
			refs := tc.RequirementRefs
			if refs == nil {
				refs = []string{}
			}
			tests = append(tests, map[string]any{"id": tc.ID, "title": tc.Title, "requirements": refs})
		}
		stmts = append(stmts, statement{
			query: `
MATCH (d:Document {id: $document_id})
MERGE (s:Suite {id: $suite_id})
MERGE (d)-[:VERIFIED_BY]->(s)
WITH s
UNWIND $tests AS t
MERGE (tc:TestCase {suite_id: $suite_id, id: t.id})
SET tc.title = t.title
MERGE (s)-[:CONTAINS]->(tc)
WITH tc, t
UNWIND t.requirements AS ref
MERGE (req:Requirement {document_id: $document_id, ref: ref})
MERGE (tc)-[:COVERS]->(req)`,
			params: map[string]any{
				"document_id": doc.ID,
				"suite_id":    outcome.Artifact.Suite.ID,
				"tests":       tests,
			},
		})
	}

	if outcome.Escalation != nil {
		reasons := make([]string, 0, len(outcome.Escalation.Reasons))
		for _, reason := range outcome.Escalation.Reasons {
			reasons = append(reasons, string(reason))
		}
		roles := make([]map[string]any, 0, len(outcome.Escalation.Roles))
		for _, issue := range outcome.Escalation.Roles {
			roles = append(roles, map[string]any{"role": string(issue.Role), "reason": string(issue.Reason)})
		}
		stmts = append(stmts, statement{
			query: `
MATCH (d:Document {id: $document_id})
MERGE (e:Escalation {document_id: $document_id})
SET e.reasons = $reasons, e.message = $message
MERGE (d)-[:ESCALATED]->(e)
WITH e
UNWIND $roles AS r
MERGE (role:Role {name: r.role})
MERGE (e)-[m:MISSING]->(role)
SET m.reason = r.reason`,
			params: map[string]any{
				"document_id": doc.ID,
				"reasons":     reasons,
				"message":     outcome.Escalation.Message,
				"roles":       roles,
			},
		})
	}
	return stmts
}

type sessionWriter struct {
	driver   neo4j.DriverWithContext
	database string
}

func (w *sessionWriter) write(ctx context.Context, stmts []statement) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.query, st.params)
			if err != nil {
				return nil, fmt.Errorf("run statement: %w", err)
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, fmt.Errorf("consume statement: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("write traceability: %w", err)
	}
	return nil
}
