package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mongolog/ingest-server/internal/batch"
	"github.com/mongolog/ingest-server/internal/version"
)

// Pinger is the slice of the storage client the health endpoint needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests
type Handler struct {
	store   *batch.Store
	tempDir string
	health  Pinger
}

// NewHandler creates a new handler. health may be nil when no storage
// connectivity check is wanted (tests).
func NewHandler(store *batch.Store, tempDir string, health Pinger) *Handler {
	return &Handler{
		store:   store,
		tempDir: tempDir,
		health:  health,
	}
}

// fileClassification is one entry of the fileClassifications form field:
// per-file metadata declared by the uploader, matched to file parts by index.
type fileClassification struct {
	FileName       string `json:"fileName"`
	Classification string `json:"classification"`
	Version        string `json:"version"`
	Index          int    `json:"index"`
}

type savedFile struct {
	partName string
	tempPath string
	size     int64
}

// Upload handles POST /upload: a multipart form with a "user" JSON field, a
// batch-wide "version" field, an optional "fileClassifications" JSON field
// and one or more "file" parts. File parts are streamed to temp storage; the
// batch is validated, queued and processed asynchronously.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "INVALID_FORM", fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	var (
		owner           batch.Owner
		ownerSeen       bool
		versionTag      string
		classifications []fileClassification
		saved           []savedFile
	)

	// Until the batch is queued the handler owns the temp payloads; after
	// that the file workers do.
	queued := false
	defer func() {
		if !queued {
			for _, f := range saved {
				os.Remove(f.tempPath)
			}
		}
	}()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "INVALID_FORM", fmt.Sprintf("reading form: %v", err))
			return
		}

		switch part.FormName() {
		case "user":
			if err := json.NewDecoder(part).Decode(&owner); err != nil {
				errorJSON(w, http.StatusBadRequest, "INVALID_USER_DATA", "Invalid user information")
				return
			}
			ownerSeen = true

		case "version":
			data, err := io.ReadAll(io.LimitReader(part, 256))
			if err != nil {
				errorJSON(w, http.StatusBadRequest, "INVALID_FORM", "reading version field")
				return
			}
			versionTag = strings.TrimSpace(string(data))

		case "fileClassifications":
			if err := json.NewDecoder(part).Decode(&classifications); err != nil {
				// Malformed classifications are not fatal; defaults apply.
				log.Printf("Failed to parse file classifications, using defaults: %v", err)
				classifications = nil
			}

		case "file":
			path, size, err := h.spoolPart(part)
			if err != nil {
				errorJSON(w, http.StatusInternalServerError, "SPOOL_ERROR", fmt.Sprintf("saving upload: %v", err))
				return
			}
			saved = append(saved, savedFile{partName: part.FileName(), tempPath: path, size: size})
		}
		part.Close()
	}

	// Fail fast, before any file processing begins.
	if !ownerSeen || owner.Email == "" || owner.UserID == "" {
		errorJSON(w, http.StatusUnauthorized, "USER_AUTH_REQUIRED", "User authentication required")
		return
	}
	if versionTag == "" {
		errorJSON(w, http.StatusBadRequest, "VERSION_TAG_MISSING", "version tag is required")
		return
	}
	if len(saved) == 0 {
		errorJSON(w, http.StatusBadRequest, "FILES_MISSING", "No files uploaded")
		return
	}

	files := make([]batch.FileJob, len(saved))
	for i, sf := range saved {
		fc := classificationFor(classifications, i)
		name := fc.FileName
		if name == "" {
			name = sf.partName
		}
		if name == "" {
			name = fmt.Sprintf("uploaded_%d.log", i)
		}
		files[i] = batch.NewFileJob(name, fc.Classification, fc.Version, versionTag, sf.tempPath)
	}

	now := time.Now()
	b := &batch.Batch{
		UploadBatch: batch.UploadBatch{
			ID:         batch.NewID(now),
			Owner:      owner,
			VersionTag: versionTag,
			CreatedAt:  now,
			Files:      files,
		},
	}

	batchID, err := h.store.Create(b)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrQueueFull):
			errorJSON(w, http.StatusTooManyRequests, "QUEUE_FULL", "Queue is full, please try again later")
		case errors.Is(err, batch.ErrOwnerMissing):
			errorJSON(w, http.StatusUnauthorized, "USER_AUTH_REQUIRED", err.Error())
		default:
			errorJSON(w, http.StatusBadRequest, "INVALID_BATCH", err.Error())
		}
		return
	}
	queued = true

	log.Printf("Batch created: %s, %d files, owner %s", batchID, len(files), owner.Email)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"batchId":    batchID,
		"status":     batch.StatusQueued,
		"totalFiles": len(files),
	})
}

// spoolPart streams one uploaded file part into the temp dir. The temp name
// is generated server-side; the client-declared filename never reaches the
// filesystem.
func (h *Handler) spoolPart(part io.Reader) (string, int64, error) {
	name := fmt.Sprintf("upload_%d_%s", time.Now().UnixNano(), uuid.NewString())
	path := filepath.Join(h.tempDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, part)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, size, nil
}

func classificationFor(classifications []fileClassification, index int) fileClassification {
	for _, fc := range classifications {
		if fc.Index == index {
			return fc
		}
	}
	return fileClassification{Classification: batch.ClassificationPrimary, Index: index}
}

// GetBatchStatus handles GET /batches/{batchID}
func (h *Handler) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	b, err := h.store.Get(batchID)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "BATCH_NOT_FOUND", err.Error())
		return
	}

	response := map[string]interface{}{
		"batchId":        b.ID,
		"status":         b.Status,
		"totalFiles":     len(b.Files),
		"filesProcessed": b.FilesProcessed,
		"entriesCreated": b.EntriesCreated,
		"linesProcessed": b.LinesProcessed,
	}
	if b.StartedAt != nil {
		response["startedAt"] = b.StartedAt.Format(time.RFC3339)
	}
	if b.FinishedAt != nil {
		response["finishedAt"] = b.FinishedAt.Format(time.RFC3339)
	}
	if b.LastError != "" {
		response["lastError"] = b.LastError
	}
	if b.Result != nil {
		response["result"] = b.Result
	}

	writeJSON(w, http.StatusOK, response)
}

// CancelBatch handles POST /batches/{batchID}/cancel
func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	if err := h.store.Cancel(batchID); err != nil {
		errorJSON(w, http.StatusBadRequest, "CANCEL_FAILED", err.Error())
		return
	}

	log.Printf("Batch canceled: %s", batchID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(batch.StatusCanceled)})
}

// GetVersion handles GET /version
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}

// Healthz handles GET /healthz: reports storage connectivity.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			errorJSON(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func errorJSON(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   code,
		"message": message,
	})
}
