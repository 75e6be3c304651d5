package models

import (
	"time"

	"github.com/google/uuid"
)

// A fuzzing host. Never hard deleted so crashes keep their origin
type Machine struct {
	Token      string // argon2id hash
	FuzzerName string // display name, will be logged
	Target     string
	PubIP      string
	PriIP      string
	Ping       time.Time
	RegDate    time.Time
	Model
	OwnerID       uuid.UUID `gorm:"type:uuid;index"`
	CrashCount    int64
	TestcaseCount int64
}

func (Machine) TableName() string {
	return "machine"
}

func (m Machine) GetID() uuid.UUID {
	return m.ID
}
