package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/resilience"
)

// Client queries an external regulatory search API:
//
//	GET {base}/search?q=...&limit=N -> {"results":[{source,citation,title,excerpt,url}]}
//
// Outgoing calls share one token bucket so parallel workflows cannot exceed the
// provider quota.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	exec       *resilience.Executor
}

type Config struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec float64
	Burst          int
	Timeout        time.Duration
}

func New(cfg Config, exec *resilience.Executor) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		exec:       exec,
	}
}

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return "research search status: " + e.status
	}
	return fmt.Sprintf("research search status: %s: %s", e.status, e.body)
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.RegulatoryReference, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "research search", errors.New("query is empty"))
	}
	if limit <= 0 {
		limit = 5
	}

	search := func(callCtx context.Context) ([]domain.RegulatoryReference, error) {
		if err := c.limiter.Wait(callCtx); err != nil {
			return nil, fmt.Errorf("research rate limit wait: %w", err)
		}
		return c.search(callCtx, query, limit)
	}
	if c.exec == nil {
		return search(ctx)
	}
	return resilience.Call(ctx, c.exec, "research.search", search, classifyResearchError)
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]domain.RegulatoryReference, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create research request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "research search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		se := &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(raw))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, domain.WrapError(domain.ErrTemporary, "research search", se)
		}
		return nil, se
	}

	var body struct {
		Results []domain.RegulatoryReference `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.WrapError(domain.ErrParsing, "decode research response", err)
	}
	if len(body.Results) > limit {
		body.Results = body.Results[:limit]
	}
	return body.Results, nil
}

func classifyResearchError(err error) resilience.ErrorClassification {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case domain.IsKind(err, domain.ErrTemporary):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.As(err, &netErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.DomainClassifier(err)
	}
}
