package domain

import (
	"strings"
	"time"
)

type SpecialistPayload struct {
	Summary    string   `json:"summary"`
	Findings   []string `json:"findings,omitempty"`
	References []string `json:"references,omitempty"`
	Quality    float64  `json:"quality"`
}

// Empty reports whether the payload carries no usable content.
func (p SpecialistPayload) Empty() bool {
	if strings.TrimSpace(p.Summary) != "" {
		return false
	}
	for _, f := range p.Findings {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

type RequestPayload struct {
	DocumentName string   `json:"document_name"`
	Excerpt      string   `json:"excerpt"`
	Category     Category `json:"category"`
	Confidence   float64  `json:"confidence"`
	Focus        string   `json:"focus,omitempty"`
}

type SpecialistRequest struct {
	CorrelationID string         `json:"correlation_id"`
	DocumentID    string         `json:"document_id"`
	Role          Role           `json:"role"`
	Payload       RequestPayload `json:"payload"`
	Timeout       time.Duration  `json:"timeout"`
	Attempt       int            `json:"attempt"`
}

type ResultStatus string

const (
	ResultSucceeded ResultStatus = "succeeded"
	ResultFailed    ResultStatus = "failed"
	ResultTimedOut  ResultStatus = "timed_out"
)

type SpecialistResult struct {
	CorrelationID string             `json:"correlation_id"`
	Role          Role               `json:"role"`
	Status        ResultStatus       `json:"status"`
	Payload       *SpecialistPayload `json:"payload,omitempty"`
	Error         string             `json:"error,omitempty"`
	Attempts      int                `json:"attempts"`
	Duration      time.Duration      `json:"duration"`
}

func (r SpecialistResult) Succeeded() bool {
	return r.Status == ResultSucceeded && r.Payload != nil
}

type Precedent struct {
	DocumentID string   `json:"document_id"`
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	ChunkIndex int      `json:"chunk_index"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
}

type RegulatoryReference struct {
	Source   string `json:"source"`
	Citation string `json:"citation"`
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	URL      string `json:"url,omitempty"`
}

type ExpertReview struct {
	Summary  string   `json:"summary"`
	Findings []string `json:"findings"`
	Risks    []string `json:"risks"`
	Quality  float64  `json:"quality"`
}

// PrecedentSource describes one validated document being added to the precedent index.
type PrecedentSource struct {
	DocumentID string   `json:"document_id"`
	Name       string   `json:"name"`
	Category   Category `json:"category"`
}
