package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ro11032005/mediaingest/internal/upload"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": formatISO8601(time.Now()),
	})
}

// handleConfig reports the advisory client config. maxFileSize here is
// the configured byte cap, not maxParallelUploads.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"config": map[string]interface{}{
			"maxFileSize":        s.cfg.MaxFileSize,
			"allowedTypes":       s.cfg.AllowedTypes,
			"chunkSize":          s.cfg.ChunkSize,
			"maxFiles":           s.cfg.MaxFiles,
			"maxParallelUploads": s.cfg.MaxParallelUploads,
		},
	})
}

type initiateRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
	MD5Hash  string `json:"md5Hash"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, fmt.Errorf("%w: malformed JSON body: %v", upload.ErrInvalidArgument, err))
		return
	}

	result, err := s.manager.Initiate(req.Filename, req.MimeType, req.FileSize, req.MD5Hash, ownerFromRequest(r))
	if err != nil {
		s.respondError(w, err)
		return
	}

	if result.Duplicate {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"duplicate":   true,
			"storagePath": result.StoredPath,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"uploadId":    result.SessionID,
		"totalChunks": result.TotalChunks,
		"chunkSize":   result.ChunkSize,
	})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := r.FormValue("uploadId")
	if uploadID == "" {
		s.respondError(w, fmt.Errorf("%w: uploadId is required", upload.ErrInvalidArgument))
		return
	}

	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		s.respondError(w, fmt.Errorf("%w: chunkIndex must be an integer: %v", upload.ErrInvalidArgument, err))
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		s.respondError(w, fmt.Errorf("%w: chunk file is required: %v", upload.ErrInvalidArgument, err))
		return
	}
	defer file.Close()

	result, err := s.manager.ReceiveChunk(uploadID, index, file)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if result.AlreadyStaged {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"message":    "Chunk already uploaded",
			"chunkIndex": index,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"chunkIndex":     index,
		"uploadedChunks": result.UploadedChunks,
		"totalChunks":    result.TotalChunks,
		"progress":       result.Progress,
	})
}

type finalizeRequest struct {
	UploadID string `json:"uploadId"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, fmt.Errorf("%w: malformed JSON body: %v", upload.ErrInvalidArgument, err))
		return
	}

	result, err := s.manager.Finalize(req.UploadID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Upload finalized",
		"storagePath": result.StoredPath,
		"uploadId":    req.UploadID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]
	sess, err := s.manager.GetStatus(uploadID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    newSessionView(sess),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]
	if err := s.manager.Cancel(uploadID); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Upload cancelled",
	})
}

// handleStats is a supplemental endpoint: a read-only view of
// ObjectStore.Stats(), the dedup index's write generation, and the
// number of sessions still open.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.objects.Stats()
	if err != nil {
		s.respondError(w, fmt.Errorf("%w: %v", upload.ErrInternal, err))
		return
	}
	active, err := s.manager.ActiveSessions()
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats": map[string]interface{}{
			"fileCount":       stats.FileCount,
			"totalBytes":      stats.TotalBytes,
			"dedupGeneration": s.dedup.Generation(),
			"activeSessions":  active,
		},
	})
}
