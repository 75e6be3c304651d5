package models

import (
	"time"

	"github.com/google/uuid"
)

// Single use link to a stored artifact
type DownloadToken struct {
	TokenHash string `gorm:"uniqueIndex"` // sha256 of the handed out token
	RealPath  string // artifact ref
	ExpiresAt time.Time
	Model
	OwnerID   uuid.UUID `gorm:"type:uuid;index"`
	IsExpired bool
}

func (DownloadToken) TableName() string {
	return "download_token"
}

func (d DownloadToken) GetID() uuid.UUID {
	return d.ID
}
