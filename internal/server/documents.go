package server

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"mastewalai/internal/usertoken"
	"mastewalai/pkg/extract"
	"mastewalai/pkg/rag"
)

// maxUploadBytes caps uploaded document size.
const maxUploadBytes = 20 << 20

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	case http.MethodGet:
		s.handleListDocuments(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	mediaType := uploadMediaType(header.Header.Get("Content-Type"), header.Filename)
	if mediaType == "" {
		writeError(w, http.StatusBadRequest, "Only PDF and DOCX files are allowed")
		return
	}

	doc, chunks, err := s.ingestor.IngestUpload(r.Context(), header.Filename, mediaType, data)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			writeError(w, http.StatusBadRequest, "Only PDF and DOCX files are allowed")
		case errors.Is(err, rag.ErrEmptyDocument):
			writeError(w, http.StatusBadRequest, rag.ErrEmptyDocument.Error())
		default:
			slog.Error("document ingestion failed", "filename", header.Filename, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to ingest document")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document": doc,
		"chunks":   chunks,
	})
}

// uploadMediaType resolves the declared content type, falling back to the
// file extension. Returns "" for anything other than PDF or DOCX.
func uploadMediaType(contentType, filename string) string {
	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			switch parsed {
			case extract.MediaTypePDF, extract.MediaTypeDOCX:
				return parsed
			case "application/octet-stream":
				// fall through to the extension
			default:
				return ""
			}
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extract.MediaTypePDF
	case ".docx":
		return extract.MediaTypeDOCX
	}
	return ""
}

func (s *Server) handleListDocuments(w http.ResponseWriter, _ *http.Request) {
	docs, err := s.store.ListDocuments()
	if err != nil {
		slog.Error("list documents", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		doc, ok, err := s.store.GetDocument(id)
		if err != nil {
			slog.Error("get document", "documentId", id, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to load document")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": doc})
	case http.MethodDelete:
		if _, ok, _ := s.store.GetDocument(id); !ok {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		if err := s.ingestor.Delete(r.Context(), id); err != nil {
			slog.Error("delete document", "documentId", id, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to delete document")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w)
	}
}

// handleReindex re-runs the ingestion pipeline for a stored document. With a
// queue configured the work happens on a consumer; otherwise it runs inline.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/reindex/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if _, ok, _ := s.store.GetDocument(id); !ok {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}

	if s.queue != nil {
		job, err := s.queue.Enqueue(r.Context(), id)
		if err != nil {
			slog.Error("enqueue reindex", "documentId", id, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to queue reindex")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
		return
	}

	chunks, err := s.ingestor.Reindex(r.Context(), id)
	if err != nil {
		slog.Error("reindex document", "documentId", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to reindex document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chunks": chunks})
}

// handleReindexJob reports the status of a queued reindex job so clients can
// poll the id returned by handleReindex. Without a queue there are no jobs.
func (s *Server) handleReindexJob(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/reindex/jobs/")
	if id == "" || strings.Contains(id, "/") || s.queue == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	job, ok, err := s.queue.GetJob(r.Context(), id)
	if err != nil {
		slog.Error("load reindex job", "jobId", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}
