// Package gallery implements the daemon that collects, indexes, and
// serves snapshot images.
package gallery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/snapcommit/snapcommit/internal/config"
	"github.com/snapcommit/snapcommit/internal/gitmeta"
	"github.com/snapcommit/snapcommit/internal/logger"
)

// Image is one indexed snapshot.
type Image struct {
	ID              uint   `gorm:"primarykey" json:"id"`
	Filename        string `gorm:"uniqueIndex" json:"filename"`
	Path            string `json:"-"`
	Revision        string `gorm:"index" json:"revision"`
	Message         string `json:"message"`
	CommitType      string `json:"commit_type"`
	Scope           string `json:"scope,omitempty"`
	RepoName        string `gorm:"index" json:"repo_name"`
	BranchName      string `json:"branch_name"`
	CommitTimestamp string `json:"commit_timestamp"`
	FilesChanged    uint32 `json:"files_changed"`
	Insertions      uint32 `json:"insertions"`
	Deletions       uint32 `json:"deletions"`
	SizeBytes       int64  `json:"size_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// Metadata reconstructs the commit metadata stored on the row.
func (i *Image) Metadata() gitmeta.CommitMetadata {
	return gitmeta.CommitMetadata{
		Revision:   i.Revision,
		Message:    i.Message,
		CommitType: i.CommitType,
		Scope:      i.Scope,
		Timestamp:  i.CommitTimestamp,
		RepoName:   i.RepoName,
		BranchName: i.BranchName,
		Stats: gitmeta.DiffStats{
			FilesChanged: i.FilesChanged,
			Insertions:   i.Insertions,
			Deletions:    i.Deletions,
		},
	}
}

// Store persists the image index.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an existing gorm connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Image{}); err != nil {
		return nil, fmt.Errorf("gallery: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.GalleryConfig) (*Store, error) {
	var (
		db  *gorm.DB
		err error
	)

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch cfg.DatabaseType {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	case "sqlite":
		if mkErr := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); mkErr != nil {
			return nil, fmt.Errorf("gallery: create data dir: %w", mkErr)
		}
		db, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormCfg)
	default:
		return nil, fmt.Errorf("gallery: unsupported database type: %s", cfg.DatabaseType)
	}
	if err != nil {
		return nil, fmt.Errorf("gallery: connect %s: %w", cfg.DatabaseType, err)
	}

	logger.Info("gallery database ready", "type", cfg.DatabaseType)
	return NewStore(db)
}

// Index records an image. A revision already present is skipped unless
// force is set; the second return value reports whether a row was
// created.
func (s *Store) Index(meta gitmeta.CommitMetadata, filename, path string, sizeBytes int64, force bool) (*Image, bool, error) {
	if meta.Revision != "" && !force {
		var existing Image
		err := s.db.Where("revision = ?", meta.Revision).First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("gallery: revision lookup: %w", err)
		}
	}

	img := &Image{
		Filename:        filename,
		Path:            path,
		Revision:        meta.Revision,
		Message:         meta.Message,
		CommitType:      meta.CommitType,
		Scope:           meta.Scope,
		RepoName:        meta.RepoName,
		BranchName:      meta.BranchName,
		CommitTimestamp: meta.Timestamp,
		FilesChanged:    meta.Stats.FilesChanged,
		Insertions:      meta.Stats.Insertions,
		Deletions:       meta.Stats.Deletions,
		SizeBytes:       sizeBytes,
	}

	// Re-ingesting the same file updates its row instead of failing the
	// filename uniqueness constraint.
	var existing Image
	err := s.db.Where("filename = ?", filename).First(&existing).Error
	switch {
	case err == nil:
		img.ID = existing.ID
		img.CreatedAt = existing.CreatedAt
		if err := s.db.Save(img).Error; err != nil {
			return nil, false, fmt.Errorf("gallery: update image: %w", err)
		}
		return img, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.Create(img).Error; err != nil {
			return nil, false, fmt.Errorf("gallery: create image: %w", err)
		}
		return img, true, nil
	default:
		return nil, false, fmt.Errorf("gallery: filename lookup: %w", err)
	}
}

// List returns images newest first.
func (s *Store) List(limit, offset int) ([]Image, int64, error) {
	var total int64
	if err := s.db.Model(&Image{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gallery: count images: %w", err)
	}

	var images []Image
	q := s.db.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&images).Error; err != nil {
		return nil, 0, fmt.Errorf("gallery: list images: %w", err)
	}
	return images, total, nil
}

// ByFilename looks up a single image.
func (s *Store) ByFilename(filename string) (*Image, error) {
	var img Image
	if err := s.db.Where("filename = ?", filename).First(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// ByRevision looks up a single image by full commit revision.
func (s *Store) ByRevision(revision string) (*Image, error) {
	var img Image
	if err := s.db.Where("revision = ?", revision).First(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// Remove drops the index row for a filename. Missing rows are not an
// error so watcher delete events stay idempotent.
func (s *Store) Remove(filename string) error {
	return s.db.Where("filename = ?", filename).Delete(&Image{}).Error
}
