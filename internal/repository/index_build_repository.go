package repository

import (
	"fmt"

	"gorm.io/gorm"

	"loganalyzer/internal/model"
)

type IndexBuildRepository struct {
	db *gorm.DB
}

func NewIndexBuildRepository(db *gorm.DB) *IndexBuildRepository {
	return &IndexBuildRepository{db: db}
}

func (r *IndexBuildRepository) Create(build *model.IndexBuild) error {
	if err := r.db.Create(build).Error; err != nil {
		return fmt.Errorf("create index build failed: %w", err)
	}
	return nil
}

// ListRecent returns the newest builds first.
func (r *IndexBuildRepository) ListRecent(limit int) ([]model.IndexBuild, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var builds []model.IndexBuild
	if err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("list index builds failed: %w", err)
	}
	return builds, nil
}
