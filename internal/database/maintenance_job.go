package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// MaintenanceJob performs periodic upkeep on one database: a connectivity
// check followed by a WAL checkpoint so the log file does not grow without
// bound between restarts.
type MaintenanceJob struct {
	db  *DB
	log zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job for db.
func NewMaintenanceJob(db *DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("job", "db_maintenance").Str("database", db.Name()).Logger(),
	}
}

// Run checks the connection and truncates the WAL.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.QuickCheck(ctx); err != nil {
		return fmt.Errorf("quick check failed: %w", err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}

	j.log.Debug().Msg("Database maintenance completed")
	return nil
}

// Name identifies the job in scheduler logs.
func (j *MaintenanceJob) Name() string {
	return "db_maintenance_" + j.db.Name()
}
