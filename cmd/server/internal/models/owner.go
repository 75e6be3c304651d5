package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const DefaultAlertMessage = "[SWEETMON] New crash detected : __title__ / __description__"

// The account layer's user identity. Everything else is scoped by it
type Owner struct {
	Username string `gorm:"uniqueIndex"`
	Model
}

func (Owner) TableName() string {
	return "owner"
}

func (o Owner) GetID() uuid.UUID {
	return o.ID
}

// One per owner, created together with it
type Profile struct {
	FirstName           string
	LastName            string
	Email               string
	AlertMessage        string
	RegistrationKeyHash string                 `gorm:"uniqueIndex"` // sha256, the key itself is shown once
	TelegramChatID      string
	ProfileImage        datatypes.Null[string] // artifact ref in the image root
	Model
	OwnerID          uuid.UUID  `gorm:"type:uuid;uniqueIndex"`
	EmailBotID       *uuid.UUID `gorm:"type:uuid"`
	TelegramBotID    *uuid.UUID `gorm:"type:uuid"`
	UseEmailAlert    bool
	UseTelegramAlert bool
}

func (Profile) TableName() string {
	return "profile"
}

func (p Profile) GetID() uuid.UUID {
	return p.ID
}
