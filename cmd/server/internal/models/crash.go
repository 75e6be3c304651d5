package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Canonical record of a crash: the first submission of a fingerprint for an owner
type Crash struct {
	Title      string
	CrashHash  string `gorm:"uniqueIndex:idx_crash_owner_hash,priority:2"`
	CrashLog   string
	CrashFile  string // artifact ref
	RegDate    time.Time
	LatestDate time.Time
	Comment    datatypes.Null[string]
	Model
	OwnerID     uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_crash_owner_hash,priority:1"`
	MachineID   *uuid.UUID `gorm:"type:uuid"`
	DupCrash    int64
	IsEncrypted bool
}

func (Crash) TableName() string {
	return "crash"
}

func (c Crash) GetID() uuid.UUID {
	return c.ID
}

// A later submission whose fingerprint matched a canonical Crash. Keeps its own artifact copy
type DupCrash struct {
	CrashHash string
	CrashFile string // artifact ref
	RegDate   time.Time
	Model
	OwnerID         uuid.UUID  `gorm:"type:uuid;index"`
	OriginalCrashID uuid.UUID  `gorm:"type:uuid;index"`
	MachineID       *uuid.UUID `gorm:"type:uuid"`
}

func (DupCrash) TableName() string {
	return "dup_crash"
}

func (d DupCrash) GetID() uuid.UUID {
	return d.ID
}
