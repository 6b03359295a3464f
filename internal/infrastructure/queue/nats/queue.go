package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/resilience"
)

// Queue carries document-received events to workers and hands escalated outcomes
// to the review subject.
type Queue struct {
	conn              *nats.Conn
	subject           string
	escalationSubject string
	queueGroup        string
	executor          *resilience.Executor
}

type Options struct {
	EscalationSubject    string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	escalationSubject := options.EscalationSubject
	if escalationSubject == "" {
		escalationSubject = subject + ".escalated"
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = "workers"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("oq-testgen"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:              conn,
		subject:           subject,
		escalationSubject: escalationSubject,
		queueGroup:        queueGroup,
		executor:          options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentReceived(ctx context.Context, documentID string) error {
	msg := nats.NewMsg(q.subject)
	msg.Data = []byte(documentID)
	msg.Header.Set(nats.MsgIdHdr, "received/"+documentID)
	return q.publish(ctx, "nats.publish_received", msg)
}

// PublishEscalation sends the escalation envelope. The message id is derived from
// the document so a redelivered outcome is deduplicated by JetStream consumers.
func (q *Queue) PublishEscalation(ctx context.Context, outcome *domain.AggregatedOutcome) error {
	data, err := encodeEscalation(outcome)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(q.escalationSubject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, "escalated/"+outcome.DocumentID)
	msg.Header.Set("Content-Type", "application/json")
	return q.publish(ctx, "nats.publish_escalation", msg)
}

func (q *Queue) publish(ctx context.Context, operation string, msg *nats.Msg) error {
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return asDomainError(operation, err)
}

func (q *Queue) SubscribeDocumentReceived(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		err := handler(handlerCtx, string(msg.Data))
		switch {
		case err == nil:
		case domain.IsFatal(err):
			// The document is already marked failed; redelivery would fail the same way.
			slog.Warn("worker_document_rejected", "document_id", string(msg.Data), "error", err)
		default:
			slog.Error("worker_handler_error", "document_id", string(msg.Data), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
