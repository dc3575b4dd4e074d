package derive

import (
	"github.com/rs/zerolog"
)

// PurgeJob evicts expired snapshot cache entries. Scheduled periodically so
// abandoned filter combinations do not accumulate.
type PurgeJob struct {
	cache *Cache
	log   zerolog.Logger
}

// NewPurgeJob creates a snapshot cache purge job.
func NewPurgeJob(cache *Cache, log zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		cache: cache,
		log:   log.With().Str("job", "snapshot_cache_purge").Logger(),
	}
}

// Run evicts expired entries.
func (j *PurgeJob) Run() error {
	if removed := j.cache.Purge(); removed > 0 {
		j.log.Debug().Int("removed", removed).Msg("Purged expired snapshots")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PurgeJob) Name() string {
	return "snapshot_cache_purge"
}
