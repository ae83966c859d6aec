package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/koopa0/docent/internal/ingest"
	"github.com/koopa0/docent/internal/knowledge"
)

const maxIngestBody = 4 << 10

// Ingestor is the slice of the ingestion pipeline the trigger endpoint
// depends on. *ingest.Pipeline satisfies it.
type Ingestor interface {
	Run(ctx context.Context, dir string) (ingest.Report, error)
	Ingesting() bool
}

type ingestHandler struct {
	pipeline Ingestor
	logger   *slog.Logger
}

type ingestRequest struct {
	SourceDirectory string `json:"sourceDirectory"`
}

type ingestResponse struct {
	ChunksAdded                     int              `json:"chunksAdded"`
	ChunksSkippedAsDuplicate        int              `json:"chunksSkippedAsDuplicate"`
	DocumentsIndexed                int              `json:"documentsIndexed"`
	DocumentsFailed                 int              `json:"documentsFailed"`
	DocumentsWithExtractionWarnings int              `json:"documentsWithExtractionWarnings"`
	Warnings                        []ingest.Warning `json:"warnings,omitempty"`
}

func toIngestResponse(r ingest.Report) ingestResponse {
	return ingestResponse{
		ChunksAdded:                     r.ChunksAdded,
		ChunksSkippedAsDuplicate:        r.ChunksSkippedAsDuplicate,
		DocumentsIndexed:                r.DocumentsIndexed,
		DocumentsFailed:                 r.DocumentsFailed,
		DocumentsWithExtractionWarnings: r.DocumentsWithWarnings(),
		Warnings:                        r.Warnings,
	}
}

// trigger handles POST /api/v1/ingest. The run executes on the
// request, so slow corpora are bounded by the server's write timeout;
// operators with large corpora use the CLI instead.
func (h *ingestHandler) trigger(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if strings.TrimSpace(req.SourceDirectory) == "" {
		WriteError(w, http.StatusBadRequest, "missing_directory", "sourceDirectory is required", h.logger)
		return
	}

	report, err := h.pipeline.Run(r.Context(), req.SourceDirectory)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrIngestInProgress):
			WriteError(w, http.StatusConflict, "ingest_in_progress", "an ingestion run is already active", h.logger)

		case errors.Is(err, knowledge.ErrEmbeddingProvider),
			errors.Is(err, knowledge.ErrDimensionMismatch):
			h.logger.Error("ingestion aborted by embedding provider", "error", err)
			WriteErrorDetails(w, http.StatusBadGateway, "embedding_failed",
				"embedding provider failed, ingestion aborted", toIngestResponse(report), h.logger)

		default:
			h.logger.Error("ingestion failed", "dir", req.SourceDirectory, "error", err)
			WriteError(w, http.StatusInternalServerError, "ingest_failed", "ingestion failed", h.logger)
		}
		return
	}

	WriteJSON(w, http.StatusOK, toIngestResponse(report), h.logger)
}
