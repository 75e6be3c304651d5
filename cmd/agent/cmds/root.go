package cmds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/sweetmon/triage-api/cmd/agent/internal/client"
	workererrors "github.com/sweetmon/triage-api/internal/worker_errors"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/cmd/agent/cmds")

const (
	flagServer    = "server"
	flagMachineID = "machine-id"
	flagToken     = "token"
	flagTimeout   = "timeout"
	flagRetries   = "retries"
)

// flags fall back to TRIAGE_SERVER, TRIAGE_MACHINE_ID, ...
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:           "agent",
	Short:         "Report crashes and testcases from a fuzzing machine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(flagServer, "http://localhost:1323", "base url of the triage api")
	flags.String(flagMachineID, "", "machine id handed out at registration")
	flags.String(flagToken, "", "machine token handed out at registration")
	flags.Duration(flagTimeout, 30*time.Second, "per request timeout")
	flags.Int(flagRetries, 3, "retries on connection errors and 5xx answers")

	settings.SetEnvPrefix("TRIAGE")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(registerCmd, pingCmd, crashCmd, testcaseCmd)
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newClient(withCredentials bool) (*client.Client, error) {
	opts := []client.Option{client.WithRetries(settings.GetInt(flagRetries))}

	if withCredentials {
		creds := client.Credentials{
			MachineID: settings.GetString(flagMachineID),
			Token:     settings.GetString(flagToken),
		}
		if creds.MachineID == "" || creds.Token == "" {
			return nil, workererrors.ExitErrorWrap(
				workererrors.ExitDenied,
				errors.New("machine id and token are required"),
			)
		}
		opts = append(opts, client.WithCredentials(creds))
	}

	c, err := client.New(settings.GetString(flagServer), settings.GetDuration(flagTimeout), opts...)
	if err != nil {
		return nil, workererrors.ExitErrorWrap(workererrors.ExitErrored, err)
	}
	return c, nil
}

// exitFor maps a server answer onto the agent's exit codes
func exitFor(err error) error {
	var statusErr client.StatusError
	if !errors.As(err, &statusErr) {
		return workererrors.ExitErrorWrap(workererrors.ExitErrored, err)
	}

	switch {
	case statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden:
		return workererrors.ExitErrorWrap(workererrors.ExitDenied, err)
	case statusErr.Code >= 400 && statusErr.Code < 500:
		return workererrors.ExitErrorWrap(workererrors.ExitRejected, err)
	default:
		return workererrors.ExitErrorWrap(workererrors.ExitErrored, err)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return workererrors.ExitErrorWrap(workererrors.ExitErrored, fmt.Errorf("failed to print result: %w", err))
	}
	return nil
}
