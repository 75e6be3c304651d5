package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/types"
)

type Context struct {
	OwnerID   *string
	MachineID *string
}

func (c Context) message(evt EventType, disposition Disposition) Message {
	return Message{
		OwnerID:       c.OwnerID,
		MachineID:     c.MachineID,
		LogContext:    logContext,
		SchemaVersion: schemaVersion,
		Disposition:   disposition,
		Type:          evt,
		Timestamp:     types.NewUnixMilli(time.Now()),
	}
}

// Audit events are JSON lines on stdout, separate from the application log on stderr
func emit(evt EventType, event any) {
	evtStr, err := json.Marshal(event)
	if err != nil {
		logger.Logger.Error("could not serialize audit event", "eventType", evt, "error", err)
		return
	}

	fmt.Println(string(evtStr))
}

func LogMachineRegistered(c Context, fuzzerName, target, pubIP string) {
	event := MachineRegistered{Message: c.message(EvtMachineRegistered, DispositionGood)}
	event.Event.FuzzerName = fuzzerName
	event.Event.Target = target
	event.Event.PubIP = pubIP

	emit(event.Type, event)
}

func LogMachineRejected(c Context, reason, pubIP string) {
	event := MachineRejected{Message: c.message(EvtMachineRejected, DispositionBad)}
	event.Event.Reason = reason
	event.Event.PubIP = pubIP

	emit(event.Type, event)
}

func LogCrashSubmission(
	c Context,
	crashID string,
	canonicalID string,
	fingerprint string,
	artifact string,
	isNew bool,
) {
	disposition := DispositionNeutral
	if isNew {
		disposition = DispositionGood
	}

	event := CrashSubmission{Message: c.message(EvtCrashSubmission, disposition)}
	event.Event.CrashID = crashID
	event.Event.CanonicalID = canonicalID
	event.Event.Fingerprint = fingerprint
	event.Event.Artifact = artifact
	event.Event.IsNew = isNew

	emit(event.Type, event)
}

func LogCrashRejected(c Context, reason string) {
	event := CrashRejected{Message: c.message(EvtCrashRejected, DispositionBad)}
	event.Event.Reason = reason

	emit(event.Type, event)
}

func LogTestcaseSubmission(
	c Context,
	testcaseID string,
	fuzzerName string,
	testcaseFile *string,
	fuzzerFile *string,
) {
	event := TestcaseSubmission{Message: c.message(EvtTestcaseSubmission, DispositionNeutral)}
	event.Event.TestcaseID = testcaseID
	event.Event.FuzzerName = fuzzerName
	event.Event.TestcaseFile = testcaseFile
	event.Event.FuzzerFile = fuzzerFile

	emit(event.Type, event)
}

func LogOwnerCreated(c Context, username string) {
	event := OwnerCreated{Message: c.message(EvtOwnerCreated, DispositionNeutral)}
	event.Event.Username = username

	emit(event.Type, event)
}

func LogRegistrationKeyRotated(c Context) {
	event := RegistrationKeyRotated{Message: c.message(EvtRegistrationKeyRotated, DispositionNeutral)}

	emit(event.Type, event)
}

func LogChannelUpdated(c Context, channel string, channelID string, isPublic bool) {
	event := ChannelUpdated{Message: c.message(EvtChannelUpdated, DispositionNeutral)}
	event.Event.Channel = channel
	event.Event.ChannelID = channelID
	event.Event.IsPublic = isPublic

	emit(event.Type, event)
}

func LogDownloadTokenIssued(c Context, tokenID string, artifact string) {
	event := DownloadTokenIssued{Message: c.message(EvtDownloadTokenIssued, DispositionNeutral)}
	event.Event.TokenID = tokenID
	event.Event.Artifact = artifact

	emit(event.Type, event)
}

func LogDownloadTokenRedeemed(c Context, tokenID string, artifact string) {
	event := DownloadTokenRedeemed{Message: c.message(EvtDownloadTokenRedeemed, DispositionNeutral)}
	event.Event.TokenID = tokenID
	event.Event.Artifact = artifact

	emit(event.Type, event)
}

// `sendErr` nil means the channel accepted the message
func LogNotificationSent(c Context, recordID string, channel string, sendErr error) {
	disposition := DispositionGood
	event := NotificationSent{}
	if sendErr != nil {
		disposition = DispositionBad
		event.Event.Error = sendErr.Error()
	}

	event.Message = c.message(EvtNotificationSent, disposition)
	event.Event.RecordID = recordID
	event.Event.Channel = channel

	emit(event.Type, event)
}
