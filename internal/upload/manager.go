package upload

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Manager orchestrates the five upload-protocol operations over the
// Session Store, Chunk Staging, Content Validator, Digest Verifier,
// Dedup Index, and Object Store. It owns no package-level state: every
// dependency is constructor-injected rather than reached for as a
// global singleton.
type Manager struct {
	store    SessionStore
	staging  *ChunkStaging
	objects  *ObjectStore
	dedup    *DedupIndex
	metadata *MetadataValidator

	chunkSize int64
	logger    *zap.Logger

	locks      *sessionLocks
	finalizeSF singleflight.Group
}

// NewManager wires the Session Manager from its six collaborators.
func NewManager(store SessionStore, staging *ChunkStaging, objects *ObjectStore, dedup *DedupIndex,
	metadata *MetadataValidator, chunkSize int64, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		staging:   staging,
		objects:   objects,
		dedup:     dedup,
		metadata:  metadata,
		chunkSize: chunkSize,
		logger:    logger,
		locks:     newSessionLocks(),
	}
}

// InitiateResult is the outcome of a successful Initiate call: either a
// fresh session was created, or a duplicate was found and no session
// exists for this call.
type InitiateResult struct {
	SessionID   string
	TotalChunks int
	ChunkSize   int64

	Duplicate  bool
	StoredPath string
}

// Initiate validates the declared metadata, consults the dedup index, and
// either short-circuits with a duplicate result or creates a fresh
// session.
func (m *Manager) Initiate(filename, mediaType string, size int64, digest, owner string) (*InitiateResult, error) {
	if errs := m.metadata.Validate(filename, mediaType, size); len(errs) > 0 {
		return nil, &ValidationError{Details: errs}
	}

	relPath, found, err := m.dedup.Lookup(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: dedup lookup: %v", ErrInternal, err)
	}
	if found {
		m.logger.Info("initiate short-circuited by dedup", zap.String("digest", digest), zap.String("path", relPath))
		return &InitiateResult{Duplicate: true, StoredPath: relPath}, nil
	}

	totalChunks := int(math.Ceil(float64(size) / float64(m.chunkSize)))
	if totalChunks < 1 {
		totalChunks = 1
	}

	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: session id: %v", ErrInternal, err)
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:          id,
		Owner:       owner,
		Filename:    filename,
		MediaType:   mediaType,
		TotalSize:   size,
		Digest:      digest,
		ChunkSize:   m.chunkSize,
		TotalChunks: totalChunks,
		State:       StateInitiated,
		CreatedAt:   now,
		LastChunkAt: now,
	}
	if err := m.store.Create(sess); err != nil {
		return nil, fmt.Errorf("%w: persist session: %v", ErrInternal, err)
	}

	m.logger.Info("session initiated",
		zap.String("session_id", id), zap.String("filename", filename),
		zap.Int("total_chunks", totalChunks), zap.Int64("size", size))

	return &InitiateResult{SessionID: id, TotalChunks: totalChunks, ChunkSize: m.chunkSize}, nil
}

// ChunkResult reports progress after a successful ReceiveChunk call.
type ChunkResult struct {
	UploadedChunks int
	TotalChunks    int
	Progress       float64
	AlreadyStaged  bool
}

// ReceiveChunk stages one chunk for a session, enforcing idempotence and
// the session's state machine.
func (m *Manager) ReceiveChunk(sessionID string, index int, r io.Reader) (*ChunkResult, error) {
	lock := m.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrConflict, sessionID, sess.State)
	}
	if index < 0 || index >= sess.TotalChunks {
		return nil, fmt.Errorf("%w: chunk index %d out of range [0,%d)", ErrInvalidArgument, index, sess.TotalChunks)
	}

	if m.staging.HasChunk(sessionID, index) {
		return &ChunkResult{
			UploadedChunks: sess.UploadedChunks,
			TotalChunks:    sess.TotalChunks,
			Progress:       sess.Progress(),
			AlreadyStaged:  true,
		}, nil
	}

	if err := m.staging.StageChunk(sessionID, index, r); err != nil {
		return nil, fmt.Errorf("%w: stage chunk: %v", ErrInternal, err)
	}

	sess.UploadedChunks++
	if sess.State == StateInitiated {
		sess.State = StateUploading
	}
	sess.LastChunkAt = time.Now().UTC()

	if err := m.store.Update(sess); err != nil {
		return nil, fmt.Errorf("%w: persist progress: %v", ErrInternal, err)
	}

	m.logger.Debug("chunk staged",
		zap.String("session_id", sessionID), zap.Int("index", index),
		zap.Int("uploaded", sess.UploadedChunks), zap.Int("total", sess.TotalChunks))

	return &ChunkResult{
		UploadedChunks: sess.UploadedChunks,
		TotalChunks:    sess.TotalChunks,
		Progress:       sess.Progress(),
	}, nil
}

// FinalizeResult is the outcome of a successful Finalize call.
type FinalizeResult struct {
	StoredPath string
}

// Finalize runs the finalisation pipeline: reassemble, verify digest,
// validate content, materialise, register. A second concurrent Finalize
// call on the same session is collapsed by singleflight so only one
// pipeline execution ever runs per session.
func (m *Manager) Finalize(sessionID string) (*FinalizeResult, error) {
	v, err, _ := m.finalizeSF.Do(sessionID, func() (interface{}, error) {
		return m.finalizeLocked(sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FinalizeResult), nil
}

func (m *Manager) finalizeLocked(sessionID string) (*FinalizeResult, error) {
	lock := m.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.State == StateCompleted {
		return &FinalizeResult{StoredPath: sess.StoredPath}, nil
	}
	if sess.State.Terminal() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrConflict, sessionID, sess.State)
	}
	if sess.UploadedChunks < sess.TotalChunks {
		return nil, fmt.Errorf("%w: %d/%d chunks uploaded", ErrFailedPrecondition, sess.UploadedChunks, sess.TotalChunks)
	}

	result, finalizeErr := m.runFinalizationPipeline(sess)
	if finalizeErr != nil {
		// Internal errors leave the session untouched so an operator can
		// recover and the client can retry Finalize; only integrity,
		// content-validation, and data-loss errors are terminal.
		if errors.Is(finalizeErr, ErrInternal) {
			m.logger.Error("finalize hit internal error", zap.String("session_id", sessionID), zap.Error(finalizeErr))
			return nil, finalizeErr
		}
		sess.State = StateFailed
		sess.Error = finalizeErr.Error()
		if err := m.store.Update(sess); err != nil {
			m.logger.Error("failed to persist failed state", zap.String("session_id", sessionID), zap.Error(err))
		}
		m.logger.Warn("finalize failed", zap.String("session_id", sessionID), zap.Error(finalizeErr))
		m.locks.forget(sessionID)
		return nil, finalizeErr
	}

	sess.State = StateCompleted
	sess.StoredPath = result.StoredPath
	sess.CompletedAt = time.Now().UTC()
	if err := m.store.Update(sess); err != nil {
		m.logger.Error("failed to persist completed state", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("%w: persist completion: %v", ErrInternal, err)
	}

	if err := m.staging.Purge(sessionID); err != nil {
		m.logger.Warn("staging purge after finalize failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.locks.forget(sessionID)

	m.logger.Info("session completed", zap.String("session_id", sessionID), zap.String("stored_path", result.StoredPath))
	return result, nil
}

// runFinalizationPipeline reassembles the staged chunks, verifies the
// digest, validates content, materialises the object, and registers it
// in the dedup index. It never mutates sess itself; the caller applies
// the resulting state transition.
func (m *Manager) runFinalizationPipeline(sess *Session) (*FinalizeResult, error) {
	tmpPath := filepath.Join(os.TempDir(), "ingest-reassemble-"+uuid.NewString())
	defer os.Remove(tmpPath) // no-op once Store has moved it away

	if err := m.staging.Reassemble(sess.ID, sess.TotalChunks, tmpPath); err != nil {
		if errors.Is(err, ErrDataLoss) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reassemble: %v", ErrInternal, err)
	}

	ok, err := Verify(tmpPath, sess.Digest)
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: digest verify: %v", ErrInternal, err)
	}
	if !ok {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: reassembled content does not match declared digest", ErrIntegrity)
	}

	result, err := Validate(tmpPath, sess.MediaType)
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: content validation: %v", ErrInternal, err)
	}
	if result != ValidationOk {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: content does not match declared media type %s", ErrInvalidContent, sess.MediaType)
	}

	relPath, err := m.objects.Store(tmpPath, sess.Filename, sess.Owner)
	if err != nil {
		return nil, fmt.Errorf("%w: materialise: %v", ErrInternal, err)
	}

	if err := m.dedup.Register(sess.Digest, relPath); err != nil {
		m.logger.Warn("dedup register failed; finalize still succeeds", zap.String("session_id", sess.ID), zap.Error(err))
	}

	return &FinalizeResult{StoredPath: relPath}, nil
}

// GetStatus reports the full session view.
func (m *Manager) GetStatus(sessionID string) (*Session, error) {
	return m.store.Get(sessionID)
}

// ActiveSessions reports how many sessions are currently open (Initiated
// or Uploading).
func (m *Manager) ActiveSessions() (int, error) {
	sessions, err := m.store.ListByState(StateInitiated, StateUploading)
	if err != nil {
		return 0, fmt.Errorf("%w: list sessions: %v", ErrInternal, err)
	}
	return len(sessions), nil
}

// Cancel transitions a non-terminal session to Cancelled and
// asynchronously purges its staging directory.
func (m *Manager) Cancel(sessionID string) error {
	lock := m.locks.get(sessionID)
	lock.Lock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		lock.Unlock()
		return err
	}
	if sess.State.Terminal() {
		lock.Unlock()
		return fmt.Errorf("%w: session %s is %s", ErrConflict, sessionID, sess.State)
	}

	sess.State = StateCancelled
	if err := m.store.Update(sess); err != nil {
		lock.Unlock()
		return fmt.Errorf("%w: persist cancel: %v", ErrInternal, err)
	}
	lock.Unlock()
	m.locks.forget(sessionID)

	go func() {
		if err := m.staging.Purge(sessionID); err != nil {
			m.logger.Warn("staging purge after cancel failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	m.logger.Info("session cancelled", zap.String("session_id", sessionID))
	return nil
}

// newSessionID builds the YYYYMMDDHHMMSS-{16 hex chars} id used as the
// upload id in the external interface.
func newSessionID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return time.Now().UTC().Format("20060102150405") + "-" + hex.EncodeToString(buf), nil
}
