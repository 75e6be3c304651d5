package types

// Queue message produced by crash ingestion and consumed by the notification dispatcher
type NotificationEvent struct {
	OwnerID     string `json:"owner_id"`
	RecordID    string `json:"record_id"`
	Title       string `json:"title"`
	Excerpt     string `json:"excerpt"`
	Fingerprint string `json:"fingerprint"`
	IsNew       bool   `json:"is_new"`
	// W3C trace context of the producing request
	Trace map[string]string `json:"trace,omitempty"`
}
