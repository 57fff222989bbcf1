package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/taxaide/taxaide/internal/assistant"
	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
)

// maxRequestBody bounds request bodies to 1 MiB of JSON plus document
// content headroom.
const maxRequestBody = 4 << 20

type handler struct {
	assistant Assistant
	logger    log.Logger
}

type queryRequest struct {
	Question string   `json:"question"`
	TopK     int      `json:"top_k,omitempty"`
	Context  []string `json:"context,omitempty"`
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	var opts []assistant.QueryOption
	if req.TopK > 0 {
		opts = append(opts, assistant.WithTopK(req.TopK))
	}
	if len(req.Context) > 0 {
		opts = append(opts, assistant.WithContext(req.Context...))
	}

	resp, err := h.assistant.Query(r.Context(), req.Question, opts...)
	if err != nil {
		// Validation errors are the only error class Query returns; they
		// carry user-actionable messages.
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error(), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

type ingestRequest struct {
	ID              string     `json:"id,omitempty"`
	Content         string     `json:"content"`
	Title           string     `json:"title,omitempty"`
	Source          string     `json:"source"`
	Jurisdiction    string     `json:"jurisdiction,omitempty"`
	DocumentType    string     `json:"document_type,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	URL             string     `json:"url,omitempty"`
}

type ingestResponse struct {
	DocumentID string   `json:"document_id"`
	ChunkIDs   []string `json:"chunk_ids"`
}

func (h *handler) ingestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	doc := knowledge.Document{
		ID:      req.ID,
		Content: req.Content,
		Metadata: knowledge.Metadata{
			Title:           req.Title,
			Source:          req.Source,
			Jurisdiction:    req.Jurisdiction,
			DocumentType:    req.DocumentType,
			PublicationDate: req.PublicationDate,
			Tags:            req.Tags,
			URL:             req.URL,
		},
	}

	chunkIDs, err := h.assistant.Ingest(r.Context(), doc)
	if err != nil {
		if errors.Is(err, knowledge.ErrInvalidMetadata) || errors.Is(err, assistant.ErrEmptyDocument) {
			writeError(w, http.StatusBadRequest, "invalid_document", err.Error(), h.logger)
			return
		}
		h.logger.Error("ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "failed to ingest document", h.logger)
		return
	}

	docID := doc.ID
	if docID == "" && len(chunkIDs) > 0 {
		// The assistant generated an ID; recover it from the chunk ID.
		docID = knowledge.DocumentIDFromChunkID(chunkIDs[0])
	}
	writeJSON(w, http.StatusCreated, ingestResponse{DocumentID: docID, ChunkIDs: chunkIDs}, h.logger)
}

type documentsResponse struct {
	Documents []documentEntry `json:"documents"`
}

type documentEntry struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Source       string   `json:"source"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	DocumentType string   `json:"document_type,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	URL          string   `json:"url,omitempty"`
}

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer in [1, 1000]", h.logger)
			return
		}
		limit = n
	}

	docs, err := h.assistant.ListDocuments(r.Context(), limit)
	if err != nil {
		h.logger.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list documents", h.logger)
		return
	}

	entries := make([]documentEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, documentEntry{
			ID:           d.ID,
			Title:        d.Metadata.Title,
			Source:       d.Metadata.Source,
			Jurisdiction: d.Metadata.Jurisdiction,
			DocumentType: d.Metadata.DocumentType,
			Tags:         d.Metadata.Tags,
			URL:          d.Metadata.URL,
		})
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: entries}, h.logger)
}

func (h *handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "document id is required", h.logger)
		return
	}
	if err := h.assistant.DeleteDocument(r.Context(), id); err != nil {
		h.logger.Error("delete document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete document", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	docs, err := h.assistant.DocumentCount(r.Context())
	if err != nil {
		h.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "failed to compute stats", h.logger)
		return
	}
	chunks, err := h.assistant.ChunkCount(r.Context())
	if err != nil {
		h.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "failed to compute stats", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Documents: docs, Chunks: chunks}, h.logger)
}

// decodeJSON decodes a bounded JSON request body, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger log.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON: "+err.Error(), logger)
		return false
	}
	return true
}
