package cmds

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/types"
	workererrors "github.com/sweetmon/triage-api/internal/worker_errors"
)

var (
	crashTitle     string
	crashLogFile   string
	crashInputFile string
	crashEncrypted bool
)

var crashCmd = &cobra.Command{
	Use:   "crash",
	Short: "Submit a crash log together with the crashing input",
	Long: `
- Exits with 0 once the server accepted the crash, the result is printed as json.
- Exits with 2 when the server rejected the submission.
- Exits with 3 when the machine credentials were refused.
- Exits with 1 for all other errors.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "crashCmd")
		defer span.End()

		crashLog, err := os.ReadFile(crashLogFile)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read crash log")
			return workererrors.ExitErrorWrap(workererrors.ExitErrored, fmt.Errorf("failed to read crash log: %w", err))
		}
		input, err := os.ReadFile(crashInputFile)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read crashing input")
			return workererrors.ExitErrorWrap(workererrors.ExitErrored, fmt.Errorf("failed to read crashing input: %w", err))
		}

		c, err := newClient(true)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build client")
			return err
		}

		resp, err := c.SubmitCrash(ctx, types.CrashSubmission{
			Title:       crashTitle,
			CrashLog:    string(crashLog),
			Artifact:    base64.StdEncoding.EncodeToString(input),
			Filename:    filepath.Base(crashInputFile),
			IsEncrypted: crashEncrypted,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to submit crash")
			return exitFor(err)
		}

		span.SetAttributes(
			attribute.String("crash.id", resp.CrashID),
			attribute.Bool("crash.new", resp.IsNew),
		)
		logger.Logger.InfoContext(ctx, "submitted crash",
			"crashID", resp.CrashID,
			"canonicalID", resp.CanonicalID,
			"new", resp.IsNew,
		)

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "submitted crash")
		return printJSON(cmd, resp)
	},
}

func init() {
	flags := crashCmd.Flags()
	flags.StringVar(&crashTitle, "title", "", "short description of the crash")
	flags.StringVar(&crashLogFile, "log-file", "", "path to the sanitizer or debugger output")
	flags.StringVar(&crashInputFile, "artifact-file", "", "path to the crashing input")
	flags.BoolVar(&crashEncrypted, "encrypted", false, "the crashing input is already encrypted")

	for _, name := range []string{"title", "log-file", "artifact-file"} {
		_ = crashCmd.MarkFlagRequired(name)
	}
}
