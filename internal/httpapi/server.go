// Package httpapi is the thin JSON-over-HTTP binding around the upload
// core. It exists only to drive the Session Manager over HTTP through a
// fixed set of endpoints, not to grow into a framework of its own.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ro11032005/mediaingest/internal/config"
	"github.com/ro11032005/mediaingest/internal/upload"
)

// Server binds the upload Manager and its two read-only collaborators
// (Object Store for /stats, Dedup Index for its write generation) to HTTP.
type Server struct {
	manager *upload.Manager
	objects *upload.ObjectStore
	dedup   *upload.DedupIndex
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer wires a Server from its collaborators.
func NewServer(manager *upload.Manager, objects *upload.ObjectStore, dedup *upload.DedupIndex, cfg config.Config, logger *zap.Logger) *Server {
	return &Server{manager: manager, objects: objects, dedup: dedup, cfg: cfg, logger: logger}
}

// Handler returns the fully wired HTTP handler: gorilla/mux routing
// wrapped in a permissive rs/cors policy.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/initiate", s.handleInitiate).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/chunk", s.handleChunk).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/finalize", s.handleFinalize).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/status/{uploadId}", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/cancel/{uploadId}", s.handleCancel).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet, http.MethodOptions)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return c.Handler(r)
}

func ownerFromRequest(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}
