package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"docuchat/internal/extract"
	"docuchat/internal/middleware"
	"docuchat/internal/session"
)

type uploadRequest struct {
	Name string `validate:"required,min=1,max=200"`
}

type Handler struct {
	service   *Service
	validate  *validator.Validate
	uploadDir string
	maxBytes  int64
}

func NewHandler(service *Service, uploadDir string, maxUploadMB int) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handler{
		service:   service,
		validate:  validator.New(),
		uploadDir: uploadDir,
		maxBytes:  int64(maxUploadMB) << 20,
	}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	req := uploadRequest{Name: r.FormValue("name")}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Name is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !extract.Supported(header.Filename) {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unsupported file type", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		slog.Error("failed to create upload directory", "error", err, "path", filepath.Clean(h.uploadDir))
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(header.Filename))
	path := filepath.Clean(filepath.Join(h.uploadDir, filename))

	dst, err := os.Create(path)
	if err != nil {
		slog.Error("failed to create file", "error", err, "path", path)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hash), file); err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to write file", http.StatusInternalServerError)
		return
	}
	fileHash := fmt.Sprintf("%x", hash.Sum(nil))

	doc, err := h.service.Upload(r.Context(), path, fileHash, req.Name)
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			slog.Warn("failed to clean up uploaded file", "error", removeErr, "path", path)
		}

		if errors.Is(err, ErrDuplicate) {
			h.writeError(r.Context(), w, "CONFLICT", "Duplicate document", http.StatusConflict)
			return
		}
		slog.Error("upload failed", "error", err, "name", req.Name)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs := h.service.List(r.Context())
	if docs == nil {
		docs = []session.Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ClearIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearIndex(r.Context()); err != nil {
		slog.Error("index clear failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to clear index", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": h.service.Stats(r.Context())}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
