package notify

import "context"

//go:generate mockgen -destination ./mock/mock.go -package mock . EmailSender,ChatSender

type SMTPConfig struct {
	Host     string
	Username string
	Password string
	Port     int
}

type EmailSender interface {
	SendEmail(ctx context.Context, server SMTPConfig, to string, subject string, body string) error
}

type ChatSender interface {
	SendChatMessage(ctx context.Context, botToken string, chatID string, body string) error
}
