package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

type ingestStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type ingestQueueFake struct {
	documentID string
	err        error
}

func (f *ingestQueueFake) PublishDocumentReceived(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documentID = documentID
	return nil
}

func (f *ingestQueueFake) SubscribeDocumentReceived(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := newDocRepoFake()
	storage := &ingestStorageFake{}
	queue := &ingestQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "urs 1.txt", "text/plain", domain.DocumentMetadata{Author: " qa ", Version: "2.1"}, bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.State != domain.StateReceived {
		t.Fatalf("expected state received, got %s", doc.State)
	}
	if doc.Metadata.Author != "qa" {
		t.Fatalf("expected trimmed author, got %q", doc.Metadata.Author)
	}
	if _, err := repo.GetByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("expected repo.Create call: %v", err)
	}
	if queue.documentID != doc.ID {
		t.Fatalf("expected queued doc id %s, got %s", doc.ID, queue.documentID)
	}
	if !strings.Contains(storage.savedKey, "_urs_1.txt") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "hello" {
		t.Fatalf("expected saved body hello, got %s", storage.savedBody)
	}
}

func TestIngestUploadQueueErrorMarksFailed(t *testing.T) {
	repo := newDocRepoFake()
	uc := NewIngestDocumentUseCase(repo, &ingestStorageFake{}, &ingestQueueFake{err: errors.New("queue down")})

	_, err := uc.Upload(context.Background(), "urs.txt", "text/plain", domain.DocumentMetadata{}, bytes.NewBufferString("hello"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if states := repo.states(); len(states) != 1 || states[0] != domain.StateFailed {
		t.Fatalf("expected document marked failed, got %v", states)
	}
}

func TestIngestUploadRejectsEmptyBody(t *testing.T) {
	storage := &ingestStorageFake{}
	uc := NewIngestDocumentUseCase(newDocRepoFake(), storage, &ingestQueueFake{})

	_, err := uc.Upload(context.Background(), "urs.txt", "text/plain", domain.DocumentMetadata{}, strings.NewReader(""))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if storage.savedKey != "" {
		t.Fatalf("expected nothing stored, got %s", storage.savedKey)
	}
}

func TestIngestUploadInfersMimeType(t *testing.T) {
	cases := map[string]string{
		"urs.pdf":   "application/pdf",
		"URS.MD":    "text/markdown",
		"notes":     "text/plain",
		"urs.txt":   "text/plain",
		"spec.docx": "text/plain",
	}
	for name, want := range cases {
		uc := NewIngestDocumentUseCase(newDocRepoFake(), &ingestStorageFake{}, &ingestQueueFake{})
		doc, err := uc.Upload(context.Background(), name, "application/octet-stream", domain.DocumentMetadata{}, strings.NewReader("x"))
		if err != nil {
			t.Fatalf("%s: Upload() error = %v", name, err)
		}
		if doc.MimeType != want {
			t.Fatalf("%s: mime = %s, want %s", name, doc.MimeType, want)
		}
	}
}

func TestStorageName(t *testing.T) {
	cases := map[string]string{
		"urs 1.txt":        "urs_1.txt",
		"../../etc/passwd": "passwd",
		"отчёт.pdf":        "_____.pdf",
		"..":               "document.txt",
	}
	for in, want := range cases {
		if got := storageName(in); got != want {
			t.Fatalf("storageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIngestUploadRequiresName(t *testing.T) {
	storage := &ingestStorageFake{}
	uc := NewIngestDocumentUseCase(newDocRepoFake(), storage, &ingestQueueFake{})

	_, err := uc.Upload(context.Background(), "  ", "text/plain", domain.DocumentMetadata{}, bytes.NewBufferString("hello"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if storage.savedKey != "" {
		t.Fatalf("expected nothing stored, got %s", storage.savedKey)
	}
}
