package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koopa0/docent/internal/ingest"
	"github.com/koopa0/docent/internal/knowledge"
)

func postIngest(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIngestSuccess(t *testing.T) {
	srv, _, fi, _, _ := testServer(t)
	fi.report = ingest.Report{
		ChunksAdded:              12,
		ChunksSkippedAsDuplicate: 3,
		DocumentsIndexed:         2,
		Warnings: []ingest.Warning{
			{Source: "scan.txt", SkippedPages: []int{2, 3}, Reason: "2 of 5 pages yielded no text"},
		},
	}

	rec := postIngest(t, srv, `{"sourceDirectory":"/corpus"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if fi.gotDir != "/corpus" {
		t.Errorf("pipeline got dir %q", fi.gotDir)
	}

	var got ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ChunksAdded != 12 || got.ChunksSkippedAsDuplicate != 3 {
		t.Errorf("counts = %+v", got)
	}
	if got.DocumentsWithExtractionWarnings != 1 || len(got.Warnings) != 1 {
		t.Errorf("warnings = %+v", got)
	}
}

func TestIngestRequiresDirectory(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	for _, body := range []string{`{}`, `{"sourceDirectory":"  "}`, `not json`} {
		rec := postIngest(t, srv, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestIngestConflictWhileRunning(t *testing.T) {
	srv, _, fi, _, _ := testServer(t)
	fi.err = ingest.ErrIngestInProgress

	rec := postIngest(t, srv, `{"sourceDirectory":"/corpus"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestIngestEmbeddingFailureCarriesPartialCounts(t *testing.T) {
	srv, _, fi, _, _ := testServer(t)
	fi.report = ingest.Report{ChunksAdded: 7, DocumentsIndexed: 1}
	fi.err = fmt.Errorf("ingesting doc.txt: %w", knowledge.ErrEmbeddingProvider)

	rec := postIngest(t, srv, `{"sourceDirectory":"/corpus"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details ingestResponse `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "embedding_failed" {
		t.Errorf("code = %q", body.Error.Code)
	}
	if body.Error.Details.ChunksAdded != 7 {
		t.Errorf("details = %+v, want partial counts", body.Error.Details)
	}
}
