package audit

import (
	"github.com/sweetmon/triage-api/internal/types"
)

var schemaVersion = "0.1.0"
var logContext = "audit"

type Disposition string

const (
	DispositionNeutral Disposition = "neutral"
	DispositionGood    Disposition = "good"
	DispositionBad     Disposition = "bad"
)

type EventType string

const (
	EvtMachineRegistered      EventType = "machine_registered"
	EvtMachineRejected        EventType = "machine_rejected"
	EvtCrashSubmission        EventType = "crash_submission"
	EvtCrashRejected          EventType = "crash_rejected"
	EvtTestcaseSubmission     EventType = "testcase_submission"
	EvtOwnerCreated           EventType = "owner_created"
	EvtRegistrationKeyRotated EventType = "registration_key_rotated"
	EvtChannelUpdated         EventType = "channel_credential_updated"
	EvtDownloadTokenIssued    EventType = "download_token_issued"
	EvtDownloadTokenRedeemed  EventType = "download_token_redeemed"
	EvtNotificationSent       EventType = "notification_sent"
)

type Message struct {
	OwnerID       *string     `json:"owner_id"`
	MachineID     *string     `json:"machine_id"`
	LogContext    string      `json:"log_context" validate:"required"`
	SchemaVersion string      `json:"version"     validate:"required"`
	Disposition   Disposition `json:"disposition" validate:"required"`
	Type          EventType   `json:"event_type"  validate:"required"`

	Timestamp types.UnixMilli `json:"timestamp" validate:"required"`
}

type MachineRegisteredEvent struct {
	FuzzerName string `json:"fuzzer_name" validate:"required"`
	Target     string `json:"target"`
	PubIP      string `json:"pub_ip"`
}

type MachineRegistered struct {
	Message
	Event MachineRegisteredEvent `json:"event" validate:"required"`
}

type MachineRejectedEvent struct {
	Reason string `json:"reason" validate:"required"`
	PubIP  string `json:"pub_ip"`
}

type MachineRejected struct {
	Message
	Event MachineRejectedEvent `json:"event" validate:"required"`
}

type CrashSubmissionEvent struct {
	CrashID     string `json:"crash_id"     validate:"required"`
	CanonicalID string `json:"canonical_id" validate:"required"`
	Fingerprint string `json:"fingerprint"  validate:"required"`
	Artifact    string `json:"artifact"     validate:"required"`
	IsNew       bool   `json:"is_new"`
}

type CrashSubmission struct {
	Message
	Event CrashSubmissionEvent `json:"event" validate:"required"`
}

type CrashRejectedEvent struct {
	Reason string `json:"reason" validate:"required"`
}

type CrashRejected struct {
	Message
	Event CrashRejectedEvent `json:"event" validate:"required"`
}

type TestcaseSubmissionEvent struct {
	TestcaseID   string  `json:"testcase_id"   validate:"required"`
	FuzzerName   string  `json:"fuzzer_name"   validate:"required"`
	TestcaseFile *string `json:"testcase_file"`
	FuzzerFile   *string `json:"fuzzer_file"`
}

type TestcaseSubmission struct {
	Message
	Event TestcaseSubmissionEvent `json:"event" validate:"required"`
}

type OwnerCreatedEvent struct {
	Username string `json:"username" validate:"required"`
}

type OwnerCreated struct {
	Message
	Event OwnerCreatedEvent `json:"event" validate:"required"`
}

type RegistrationKeyRotatedEvent struct{}

type RegistrationKeyRotated struct {
	Message
	Event RegistrationKeyRotatedEvent `json:"event"`
}

type ChannelUpdatedEvent struct {
	Channel   string `json:"channel"    validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	IsPublic  bool   `json:"is_public"`
}

type ChannelUpdated struct {
	Message
	Event ChannelUpdatedEvent `json:"event" validate:"required"`
}

type DownloadTokenEvent struct {
	TokenID  string `json:"token_id" validate:"required"`
	Artifact string `json:"artifact" validate:"required"`
}

type DownloadTokenIssued struct {
	Message
	Event DownloadTokenEvent `json:"event" validate:"required"`
}

type DownloadTokenRedeemed struct {
	Message
	Event DownloadTokenEvent `json:"event" validate:"required"`
}

type NotificationSentEvent struct {
	RecordID string `json:"record_id" validate:"required"`
	Channel  string `json:"channel"   validate:"required"`
	Error    string `json:"error,omitempty"`
}

type NotificationSent struct {
	Message
	Event NotificationSentEvent `json:"event" validate:"required"`
}
