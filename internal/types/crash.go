package types

type (
	CrashSubmission struct {
		// 1KiB max
		Title string `json:"title"        validate:"required,max=1024"`
		// Sanitizer / debugger output. The fingerprint is computed from this
		//
		// 1MiB max
		CrashLog string `json:"crash_log"    validate:"required,max=1048576"`
		// Base64 encoded crashing input
		Artifact string `json:"artifact"     validate:"required,base64"    format:"base64"`
		// Original filename of the crashing input, only the base name is kept
		Filename    string `json:"filename"     validate:"required,max=255"`
		IsEncrypted bool   `json:"is_encrypted"`
	}

	CrashSubmissionResponse struct {
		CrashID     string `json:"crash_id"     format:"uuid" validate:"required,uuid_rfc4122"`
		CanonicalID string `json:"canonical_id" format:"uuid" validate:"required,uuid_rfc4122"`
		Fingerprint string `json:"fingerprint"                validate:"required"`
		IsNew       bool   `json:"is_new"`
	}

	Crash struct {
		ID          string    `json:"id"           format:"uuid"`
		MachineID   *string   `json:"machine_id"   format:"uuid"`
		Title       string    `json:"title"`
		Fingerprint string    `json:"fingerprint"`
		CrashLog    string    `json:"crash_log"`
		DupCrash    int64     `json:"dup_crash"`
		CrashFile   string    `json:"crash_file"`
		RegDate     UnixMilli `json:"reg_date"`
		LatestDate  UnixMilli `json:"latest_date"`
		Comment     *string   `json:"comment"`
		IsEncrypted bool      `json:"is_encrypted"`
	}

	CrashComment struct {
		// 64KiB max
		Comment string `json:"comment" validate:"max=65536"`
	}
)
