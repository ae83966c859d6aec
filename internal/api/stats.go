package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/koopa0/docent/internal/knowledge"
	"github.com/koopa0/docent/internal/session"
)

// IndexStats is the slice of the chunk store the stats endpoint reads.
// *knowledge.Store satisfies it.
type IndexStats interface {
	Stats(ctx context.Context) (knowledge.Stats, error)
	Dimension() int
}

type statsHandler struct {
	index    IndexStats
	sessions *session.Store
	pipeline Ingestor
	logger   *slog.Logger
}

type statsResponse struct {
	Chunks             int  `json:"chunks"`
	Documents          int  `json:"documents"`
	Sessions           int  `json:"sessions"`
	Ingesting          bool `json:"ingesting"`
	EmbeddingDimension int  `json:"embeddingDimension"`
}

// stats handles GET /api/v1/stats.
func (h *statsHandler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.index.Stats(r.Context())
	if err != nil {
		h.logger.Error("reading index stats", "error", err)
		WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to read index stats", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, statsResponse{
		Chunks:             st.Chunks,
		Documents:          st.Documents,
		Sessions:           h.sessions.Count(),
		Ingesting:          h.pipeline.Ingesting(),
		EmbeddingDimension: h.index.Dimension(),
	}, h.logger)
}
