package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Testcase struct {
	Title        string
	FuzzerName   string
	Target       string
	Description  string
	TestcaseURL  string
	FuzzerURL    string
	FuzzerFile   datatypes.Null[string] // artifact ref in the fuzzer root
	TestcaseFile datatypes.Null[string] // artifact ref in the testcase root
	Model
	OwnerID   uuid.UUID  `gorm:"type:uuid;index"`
	MachineID *uuid.UUID `gorm:"type:uuid"`
}

func (Testcase) TableName() string {
	return "testcase"
}

func (t Testcase) GetID() uuid.UUID {
	return t.ID
}
