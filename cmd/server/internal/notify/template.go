package notify

import (
	"strings"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
)

const (
	placeholderTitle       = "__title__"
	placeholderDescription = "__description__"
)

// Render substitutes the alert placeholders. An empty template falls back to the default alert
func Render(template, title, description string) string {
	if strings.TrimSpace(template) == "" {
		template = models.DefaultAlertMessage
	}

	return strings.NewReplacer(
		placeholderTitle, title,
		placeholderDescription, description,
	).Replace(template)
}

func subject(title string, isNew bool) string {
	if isNew {
		return "[SWEETMON] New crash: " + title
	}
	return "[SWEETMON] Duplicate crash: " + title
}
