package types

type (
	TestcaseSubmission struct {
		Title       string `json:"title"        validate:"required,max=1024"`
		FuzzerName  string `json:"fuzzer_name"  validate:"required,max=256"`
		Target      string `json:"target"       validate:"max=1024"`
		Description string `json:"description"  validate:"max=65536"`
		TestcaseURL string `json:"testcase_url" validate:"omitempty,url,max=2048"`
		FuzzerURL   string `json:"fuzzer_url"   validate:"omitempty,url,max=2048"`
		// Base64 encoded testcase, optional
		Testcase *string `json:"testcase"     validate:"omitempty,base64"       format:"base64"`
		// Base64 encoded fuzzer binary or source, optional
		Fuzzer *string `json:"fuzzer"       validate:"omitempty,base64"       format:"base64"`
	}

	TestcaseSubmissionResponse struct {
		TestcaseID string `json:"testcase_id" format:"uuid" validate:"required,uuid_rfc4122"`
	}
)
