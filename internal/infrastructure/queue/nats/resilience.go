package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/resilience"
)

// transientConnErrors are raised while the client reconnects; a later publish can succeed.
var transientConnErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrSlowConsumer,
}

// Payload and subject problems fail the same way on every attempt and say
// nothing about broker health.
var permanentPublishErrors = []error{
	nats.ErrBadSubject,
	nats.ErrMaxPayload,
	nats.ErrInvalidMsg,
}

func isTransient(err error) bool {
	for _, target := range transientConnErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if isTransient(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	for _, target := range permanentPublishErrors {
		if errors.Is(err, target) {
			return resilience.ErrorClassification{}
		}
	}
	return resilience.DomainClassifier(err)
}

func asDomainError(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if isTransient(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
