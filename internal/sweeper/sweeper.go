// Package sweeper runs the two out-of-band lifecycle tasks the ingest
// service needs: reclaiming abandoned chunk staging and expiring stored
// objects past their retention horizon. Neither task touches the
// Session Store: a session whose staging was swept simply becomes
// unfinalisable, and sweeping a stored object merely lets a later dedup
// lookup miss.
package sweeper

import (
	"time"

	"go.uber.org/zap"

	"github.com/ro11032005/mediaingest/internal/upload"
)

// Sweeper wires the two components whose filesystem areas need periodic
// reclamation: Chunk Staging and Object Store. It holds no Session Store
// reference because neither sweep task mutates session state.
type Sweeper struct {
	staging *upload.ChunkStaging
	objects *upload.ObjectStore

	chunkTimeout  time.Duration
	retentionDays time.Duration

	logger *zap.Logger
}

// New builds a Sweeper from its two filesystem-owning collaborators and
// the configured horizons.
func New(staging *upload.ChunkStaging, objects *upload.ObjectStore, chunkTimeout time.Duration, retentionDays time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		staging:       staging,
		objects:       objects,
		chunkTimeout:  chunkTimeout,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// PurgeExpiredStaging deletes any staging directory older than the
// configured chunk timeout. Recommended cadence: hourly.
func (s *Sweeper) PurgeExpiredStaging(now time.Time) (int, error) {
	deleted, err := s.staging.PurgeExpired(now, s.chunkTimeout)
	if err != nil {
		s.logger.Error("staging sweep failed", zap.Error(err), zap.Int("deleted", deleted))
		return deleted, err
	}
	s.logger.Info("staging sweep complete", zap.Int("deleted", deleted))
	return deleted, nil
}

// PurgeExpiredObjects deletes any stored object older than the configured
// retention horizon and prunes directories left empty by the deletions.
// Recommended cadence: daily.
func (s *Sweeper) PurgeExpiredObjects(now time.Time) (upload.SweepResult, error) {
	result, err := s.objects.PurgeExpired(now, s.retentionDays)
	if err != nil {
		s.logger.Error("object sweep finished with errors",
			zap.Int64("scanned", result.Scanned), zap.Int64("deleted", result.Deleted),
			zap.Int64("errors", result.Errors), zap.Int64("freed_bytes", result.FreedBytes))
		return result, err
	}
	s.logger.Info("object sweep complete",
		zap.Int64("scanned", result.Scanned), zap.Int64("deleted", result.Deleted),
		zap.Int64("freed_bytes", result.FreedBytes))
	return result, nil
}

// RunStagingLoop ticks PurgeExpiredStaging until stop is closed.
func (s *Sweeper) RunStagingLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, _ = s.PurgeExpiredStaging(time.Now().UTC())
		}
	}
}

// RunObjectLoop ticks PurgeExpiredObjects until stop is closed.
func (s *Sweeper) RunObjectLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, _ = s.PurgeExpiredObjects(time.Now().UTC())
		}
	}
}
