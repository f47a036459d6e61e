package httpapi

import (
	"time"

	"github.com/ro11032005/mediaingest/internal/upload"
)

// sessionView is the JSON shape of a session: lower-cased state names
// and ISO 8601 timestamps.
type sessionView struct {
	UploadID       string  `json:"uploadId"`
	Filename       string  `json:"filename"`
	MediaType      string  `json:"mediaType"`
	FileSize       int64   `json:"fileSize"`
	ChunkSize      int64   `json:"chunkSize"`
	TotalChunks    int     `json:"totalChunks"`
	UploadedChunks int     `json:"uploadedChunks"`
	Progress       float64 `json:"progress"`
	Status         string  `json:"status"`
	StoragePath    string  `json:"storagePath,omitempty"`
	Error          string  `json:"error,omitempty"`
	Owner          string  `json:"owner,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	LastChunkAt    string  `json:"lastChunkAt"`
	CompletedAt    string  `json:"completedAt,omitempty"`
}

func newSessionView(s *upload.Session) sessionView {
	v := sessionView{
		UploadID:       s.ID,
		Filename:       s.Filename,
		MediaType:      s.MediaType,
		FileSize:       s.TotalSize,
		ChunkSize:      s.ChunkSize,
		TotalChunks:    s.TotalChunks,
		UploadedChunks: s.UploadedChunks,
		Progress:       s.Progress(),
		Status:         s.State.String(),
		StoragePath:    s.StoredPath,
		Error:          s.Error,
		Owner:          s.Owner,
		CreatedAt:      formatISO8601(s.CreatedAt),
		LastChunkAt:    formatISO8601(s.LastChunkAt),
	}
	if !s.CompletedAt.IsZero() {
		v.CompletedAt = formatISO8601(s.CompletedAt)
	}
	return v
}

func formatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
