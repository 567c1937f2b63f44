package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hyperjump/ragtriever/internal/answer"
	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/indexer"
	"github.com/hyperjump/ragtriever/internal/llm"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/search"
	"github.com/hyperjump/ragtriever/internal/storage"
	"go.uber.org/zap"
)

type documentRequest struct {
	DocumentID string `json:"document_id"`
}

type listDocumentsRequest struct {
	DocType string `json:"doc_type"`
}

type searchDocumentsRequest struct {
	Query   string `json:"query"`
	DocType string `json:"doc_type"`
}

// decode reads an optional JSON body; an empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	*search.Status
	CacheEntries int64              `json:"cache_entries"`
	Embedder     string             `json:"embedder"`
	Model        string             `json:"model"`
	DiskUsage    *storage.DiskUsage `json:"disk_usage,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := s.engine.Status(ctx)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statusResponse{
		Status:   status,
		Embedder: s.config.Embedding.Provider,
		Model:    s.config.LLM.Model,
	}
	if s.cache != nil {
		n, err := s.cache.Count(ctx)
		if err != nil {
			s.logger.Warn("status: count cache entries failed", zap.Error(err))
		} else {
			resp.CacheEntries = n
			status.Classes[storage.ClassName(storage.ClassCache, status.Vectorizer)] = n
		}
	}
	usage, err := storage.MeasureDiskUsage(
		s.config.Storage.DatabasePath,
		s.config.Storage.BleveIndexPath,
		s.config.Storage.VectorIndexPath,
	)
	if err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	} else {
		resp.DiskUsage = usage
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, ListComponents(s.config))
}

func (s *Server) handleProviderCheck(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		s.respondError(w, http.StatusNotImplemented, "language model provider not configured")
		return
	}
	if err := s.provider.Check(r.Context()); err != nil {
		resp := map[string]string{"status": "failed", "error": err.Error()}
		var perr *llm.ProviderError
		if errors.As(err, &perr) {
			resp["kind"] = string(perr.Kind)
		}
		s.respondJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "model": s.config.LLM.Model})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.String("model", req.Model))
	ans, err := s.answers.Answer(r.Context(), req.Query, req.Model)
	if err != nil {
		if errors.Is(err, answer.ErrRetrievalFailure) {
			s.logger.Warn("retrieval failed", zap.Error(err))
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleLoadData(w http.ResponseWriter, r *http.Request) {
	var req indexer.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("load data request",
		zap.String("reader", string(req.Reader)),
		zap.String("chunker", string(req.Chunker)),
		zap.Int("files", len(req.FileNames)),
		zap.String("path", req.FilePath))
	report, err := s.loader.Load(r.Context(), &req)
	if err != nil {
		if errors.Is(err, indexer.ErrInvalidChunking) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("load data failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decode(r, &req); err != nil || req.DocumentID == "" {
		s.respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	doc, err := s.engine.GetDocument(r.Context(), req.DocumentID)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"document": doc})
}

func (s *Server) handleGetAllDocuments(w http.ResponseWriter, r *http.Request) {
	var req listDocumentsRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	docs, err := s.engine.ListDocuments(ctx, req.DocType)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	types, err := s.engine.DocumentTypes(ctx)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "doc_types": types})
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	var req searchDocumentsRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	docs, err := s.engine.SearchDocuments(ctx, req.Query, req.DocType)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	types, err := s.engine.DocumentTypes(ctx)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "doc_types": types})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decode(r, &req); err != nil || req.DocumentID == "" {
		s.respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	s.logger.Debug("delete document request", zap.String("id", req.DocumentID))
	if err := s.engine.DeleteDocument(r.Context(), req.DocumentID); err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": req.DocumentID})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.engine.Reset(ctx); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.cache != nil {
		if err := s.cache.Purge(ctx); err != nil {
			s.logger.Error("cache purge failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset", "tenant": s.config.Tenant})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := decode(r, &body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
