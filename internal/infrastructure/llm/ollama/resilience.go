package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/resilience"
)

// StatusError is a non-2xx answer from Ollama with a truncated body.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
}

// statusKinds maps Ollama answers onto domain error kinds. Codes missing here are
// permanent and carry no kind.
var statusKinds = map[int]error{
	http.StatusRequestTimeout:      domain.ErrTemporary,
	http.StatusTooManyRequests:     domain.ErrTemporary,
	http.StatusInternalServerError: domain.ErrTemporary,
	http.StatusBadGateway:          domain.ErrTemporary,
	http.StatusServiceUnavailable:  domain.ErrTemporary,
	http.StatusGatewayTimeout:      domain.ErrTemporary,
	http.StatusUnauthorized:        domain.ErrUnauthorized,
	http.StatusForbidden:           domain.ErrUnauthorized,
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller's deadline is the role timeout; do not blame the backend.
		return resilience.ErrorClassification{}
	case domain.IsKind(err, domain.ErrParsing):
		return resilience.ErrorClassification{}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		kind := statusKinds[statusErr.StatusCode]
		return resilience.ErrorClassification{
			Retryable:     kind == domain.ErrTemporary,
			RecordFailure: kind == domain.ErrTemporary,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// asDomainError attaches the domain kind the caller branches on.
func asDomainError(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrUnauthorized) {
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if kind, ok := statusKinds[statusErr.StatusCode]; ok {
			return domain.WrapError(kind, operation, err)
		}
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
