package model

import "time"

// IndexBuild records one successful vector index build.
type IndexBuild struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"size:64;not null;index" json:"session_id"`
	FileName   string    `gorm:"size:255;not null;index" json:"file_name"`
	Rows       int       `gorm:"not null" json:"rows"`
	Chunks     int       `gorm:"not null" json:"chunks"`
	CacheHits  int       `gorm:"not null;default:0" json:"cache_hits"`
	DurationMS int64     `gorm:"not null" json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
