package types

type (
	OwnerCreate struct {
		Username  string `json:"username"   validate:"required,max=150"`
		FirstName string `json:"first_name" validate:"max=150"`
		LastName  string `json:"last_name"  validate:"max=150"`
		Email     string `json:"email"      validate:"omitempty,email"`
	}

	OwnerCreateResponse struct {
		OwnerID string `json:"owner_id" format:"uuid" validate:"required,uuid_rfc4122"`
		// Only returned once
		RegistrationKey string `json:"registration_key"        validate:"required"`
	}

	RegistrationKeyResponse struct {
		RegistrationKey string `json:"registration_key" validate:"required"`
	}

	// Fields left out of the payload are not changed
	NotificationPreferences struct {
		AlertMessage     Optional[string] `json:"alert_message"      validate:"-"`
		Email            Optional[string] `json:"email"              validate:"-"`
		TelegramChatID   Optional[string] `json:"telegram_chat_id"   validate:"-"`
		UseEmailAlert    Optional[bool]   `json:"use_email_alert"    validate:"-"`
		UseTelegramAlert Optional[bool]   `json:"use_telegram_alert" validate:"-"`
	}

	EmailBotConfig struct {
		EmailID    string `json:"email_id"    validate:"required,email"`
		Password   string `json:"password"    validate:"required"`
		SMTPServer string `json:"smtp_server" validate:"required,hostname"`
		SMTPPort   int    `json:"smtp_port"   validate:"required,min=1,max=65535"`
		IsPublic   bool   `json:"is_public"`
	}

	TelegramBotConfig struct {
		Name        string `json:"name"         validate:"required,max=256"`
		Key         string `json:"key"          validate:"required,telegramkey"`
		IsActivated bool   `json:"is_activated"`
		IsPublic    bool   `json:"is_public"`
	}

	// Point the owner at a bot it owns or one another owner made public
	SharedChannel struct {
		Channel string `json:"channel" validate:"required,oneof=email telegram"`
		BotID   string `json:"bot_id"  validate:"required,uuid_rfc4122"         format:"uuid"`
	}

	ChannelResponse struct {
		ID string `json:"id" format:"uuid" validate:"required,uuid_rfc4122"`
	}

	ProfileImage struct {
		// Base64 encoded JPEG
		Image string `json:"image" validate:"required,base64" format:"base64"`
	}

	DownloadTokenRequest struct {
		CrashID string `json:"crash_id" validate:"required,uuid_rfc4122" format:"uuid"`
	}

	DownloadTokenResponse struct {
		Token     string    `json:"token"      validate:"required"`
		ExpiresAt UnixMilli `json:"expires_at" validate:"required"`
	}
)
