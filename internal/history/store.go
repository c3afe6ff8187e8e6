// Package history archives finished batch runs in a local SQLite database.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/platform"
)

const (
	dbFileName       = "history.db"
	appDirName       = "mediaporter"
	DefaultListLimit = 20
)

// Store is the batch history database
type Store struct {
	db *gorm.DB
}

// DefaultPath returns the history database path under the user config dir
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return dbFileName
	}
	return filepath.Join(dir, appDirName, dbFileName)
}

// Open opens or creates the database at path and migrates the schema
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&BatchRecord{}, &TaskRecord{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun stores the batch and its tasks, replacing an earlier record of the
// same batch.
func (s *Store) SaveRun(ctx context.Context, run model.BatchRun) error {
	rec := toRecord(run)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", rec.ID).Delete(&TaskRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear tasks: %w", err)
		}
		tasks := rec.Tasks
		rec.Tasks = nil
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("failed to save batch: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}
		if err := tx.Create(&tasks).Error; err != nil {
			return fmt.Errorf("failed to save tasks: %w", err)
		}
		return nil
	})
}

// ListRuns returns the most recent batches, newest first, without tasks
func (s *Store) ListRuns(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var runs []BatchRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return runs, nil
}

// GetRun returns one batch with its tasks in input order
func (s *Store) GetRun(ctx context.Context, id string) (BatchRecord, error) {
	var run BatchRecord
	err := s.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		First(&run, "id = ?", id).Error
	if err != nil {
		return BatchRecord{}, fmt.Errorf("failed to get batch %s: %w", id, err)
	}
	return run, nil
}

func toRecord(run model.BatchRun) BatchRecord {
	sum := run.Summary()
	rec := BatchRecord{
		ID:           run.ID,
		Mode:         string(run.Mode),
		Quality:      string(run.Quality),
		Status:       string(run.Status),
		Total:        sum.Total,
		Succeeded:    sum.Succeeded,
		Failed:       sum.Failed,
		Cancelled:    sum.Cancelled,
		Rejected:     sum.Rejected,
		AuthFailures: sum.AuthFailures,
		CreatedAt:    run.CreatedAt,
		FinishedAt:   run.FinishedAt,
	}
	for _, t := range run.Tasks {
		tr := TaskRecord{
			ID:           t.ID,
			BatchID:      run.ID,
			LineNo:       t.LineNo,
			SourceLine:   t.SourceLine,
			ResourceKind: string(t.Resource.Kind),
			ResourceID:   t.Resource.ID,
			CustomName:   t.CustomName,
			Title:        t.Title,
			Status:       t.Status.String(),
			Attempts:     t.Attempt,
			OutputPath:   t.OutputPath,
			NeedsLogin:   t.NeedsLogin,
			FinishedAt:   t.FinishedAt,
		}
		if last, ok := t.LastError(); ok {
			tr.LastError = last.Message
		}
		rec.Tasks = append(rec.Tasks, tr)
	}
	return rec
}
