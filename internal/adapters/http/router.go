package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/oq-testgen/internal/config"
	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/export/xlsx"
)

type Router struct {
	cfg         config.Config
	ingest      ports.DocumentIngestor
	workflows   ports.WorkflowSubmitter
	escalations ports.EscalationResender
	reader      ports.OutcomeReader
	validator   *requestValidator
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	workflows ports.WorkflowSubmitter,
	escalations ports.EscalationResender,
	reader ports.OutcomeReader,
) *Router {
	validator, err := newRequestValidator()
	if err != nil {
		// The OpenAPI document is embedded at build time.
		panic(err)
	}
	return &Router{
		cfg:         cfg,
		ingest:      ingest,
		workflows:   workflows,
		escalations: escalations,
		reader:      reader,
		validator:   validator,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("GET /v1/documents/{id}/outcome", rt.getOutcome)
	api.HandleFunc("GET /v1/documents/{id}/suite.xlsx", rt.exportSuite)
	api.HandleFunc("POST /v1/documents/{id}/escalation", rt.resendEscalation)
	api.HandleFunc("POST /v1/workflows", rt.runWorkflow)

	var v1 http.Handler = rt.validator.middleware(api)
	v1 = bodyLimitMiddleware(v1, rt.cfg.APIMaxUploadBytes)
	v1 = backpressureMiddleware(v1, rt.cfg.APIBackpressureMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	v1 = rateLimitMiddleware(v1, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	mux.Handle("/v1/", v1)

	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(OpenAPISpec())
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.APIMaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIMaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_input", "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	meta := domain.DocumentMetadata{
		Author:  r.FormValue("author"),
		Version: r.FormValue("version"),
	}
	doc, err := rt.ingest.Upload(r.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), meta, file)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.reader.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getOutcome(w http.ResponseWriter, r *http.Request) {
	outcome, err := rt.reader.GetOutcome(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) exportSuite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	outcome, err := rt.reader.GetOutcome(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.WriteSuite(&buf, outcome); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`-oq-suite.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"`
		Author  string `json:"author"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_input", "request body exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}

	outcome, err := rt.workflows.Submit(r.Context(), req.Name, req.Content, domain.DocumentMetadata{
		Author:  req.Author,
		Version: req.Version,
	})
	if outcome != nil {
		if err != nil {
			// The outcome is stored; only a reporting hand-off failed. A pending
			// escalation is retried through POST /v1/documents/{id}/escalation.
			slog.Warn("workflow_report_failed",
				"request_id", requestIDFromContext(r.Context()),
				"document_id", outcome.DocumentID,
				"escalation_pending", outcome.EscalationPending(),
				"error", err,
			)
		}
		writeJSON(w, http.StatusOK, outcome)
		return
	}
	writeDomainError(w, r, err)
}

func (rt *Router) resendEscalation(w http.ResponseWriter, r *http.Request) {
	outcome, err := rt.escalations.ResendEscalation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_error", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeError(w, status, errorKind(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
