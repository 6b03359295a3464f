package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

// IngestDocumentUseCase stores an uploaded source document and queues it for the
// asynchronous workflow.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	now     func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// extensionTypes covers clients that upload without a usable content type.
var extensionTypes = map[string]string{
	".pdf":      "application/pdf",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	name, mimeType string,
	meta domain.DocumentMetadata,
	body io.Reader,
) (*domain.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("document name is required"))
	}

	buffered := bufio.NewReader(body)
	if _, err := buffered.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("document is empty"))
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}

	id := uuid.NewString()
	key := id + "_" + storageName(name)
	if err := uc.storage.Save(ctx, key, buffered); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := uc.now()
	doc := &domain.Document{
		ID:          id,
		Name:        name,
		MimeType:    resolveMimeType(name, mimeType),
		StoragePath: key,
		Metadata: domain.DocumentMetadata{
			Author:  strings.TrimSpace(meta.Author),
			Version: strings.TrimSpace(meta.Version),
		},
		State:     domain.StateReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentReceived(ctx, doc.ID); err != nil {
		publishErr := fmt.Errorf("publish ingestion event: %w", err)
		// Nothing will pick the document up; do not leave it in received.
		if markErr := uc.repo.UpdateState(ctx, doc.ID, domain.StateFailed, publishErr.Error()); markErr != nil {
			return nil, fmt.Errorf("%w; mark failed state: %v", publishErr, markErr)
		}
		return nil, publishErr
	}
	return doc, nil
}

func resolveMimeType(name, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(declared, "application/octet-stream") {
		return declared
	}
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "text/plain"
}

// storageName keeps ASCII letters, digits, dot, dash and underscore.
func storageName(name string) string {
	base := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(".-_", r)) {
			return r
		}
		return '_'
	}, filepath.Base(name))
	if strings.Trim(base, "._") == "" {
		return "document.txt"
	}
	return base
}
