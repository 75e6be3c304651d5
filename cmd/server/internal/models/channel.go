package models

import (
	"github.com/google/uuid"
)

const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

type EmailBot struct {
	EmailID    string
	EmailPwEnc string // sealed with the owner's key, never stored in clear
	SMTPServer string
	Model
	OwnerID  uuid.UUID `gorm:"type:uuid;index"`
	SMTPPort int
	IsPublic bool
}

func (EmailBot) TableName() string {
	return "email_bot"
}

func (e EmailBot) GetID() uuid.UUID {
	return e.ID
}

type TelegramBot struct {
	Name   string
	KeyEnc string // sealed with the owner's key, never stored in clear
	Model
	OwnerID     uuid.UUID `gorm:"type:uuid;index"`
	IsActivated bool
	IsPublic    bool
}

func (TelegramBot) TableName() string {
	return "telegram_bot"
}

func (t TelegramBot) GetID() uuid.UUID {
	return t.ID
}
