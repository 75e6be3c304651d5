package cmds

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/sweetmon/triage-api/internal/types"
	workererrors "github.com/sweetmon/triage-api/internal/worker_errors"
)

var (
	testcase         types.TestcaseSubmission
	testcaseFile     string
	testcaseFuzzerFile string
)

// optional blob, empty path means absent
func readBase64(path string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return &encoded, nil
}

var testcaseCmd = &cobra.Command{
	Use:   "testcase",
	Short: "Share a testcase and optionally the fuzzer that produced it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "testcaseCmd")
		defer span.End()

		var err error
		testcase.Testcase, err = readBase64(testcaseFile)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read testcase")
			return workererrors.ExitErrorWrap(workererrors.ExitErrored, err)
		}
		testcase.Fuzzer, err = readBase64(testcaseFuzzerFile)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read fuzzer")
			return workererrors.ExitErrorWrap(workererrors.ExitErrored, err)
		}

		c, err := newClient(true)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build client")
			return err
		}

		resp, err := c.SubmitTestcase(ctx, testcase)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to submit testcase")
			return exitFor(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "submitted testcase")
		return printJSON(cmd, resp)
	},
}

func init() {
	flags := testcaseCmd.Flags()
	flags.StringVar(&testcase.Title, "title", "", "testcase title")
	flags.StringVar(&testcase.FuzzerName, "fuzzer-name", "", "fuzzer that produced the testcase")
	flags.StringVar(&testcase.Target, "target", "", "fuzzing target")
	flags.StringVar(&testcase.Description, "description", "", "free form notes")
	flags.StringVar(&testcase.TestcaseURL, "testcase-url", "", "where the testcase is hosted")
	flags.StringVar(&testcase.FuzzerURL, "fuzzer-url", "", "where the fuzzer is hosted")
	flags.StringVar(&testcaseFile, "testcase-file", "", "testcase to upload")
	flags.StringVar(&testcaseFuzzerFile, "fuzzer-file", "", "fuzzer binary or source to upload")

	_ = testcaseCmd.MarkFlagRequired("title")
	_ = testcaseCmd.MarkFlagRequired("fuzzer-name")
}
