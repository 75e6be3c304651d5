package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/types"
)

var registration types.MachineRegistration

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this machine with an owner's registration key",
	Long: `
Prints the machine id and token. The token is only shown once, keep it
for the other subcommands (--machine-id/--token or TRIAGE_MACHINE_ID/TRIAGE_TOKEN).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "registerCmd")
		defer span.End()

		c, err := newClient(false)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build client")
			return err
		}

		resp, err := c.Register(ctx, registration)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to register machine")
			return exitFor(err)
		}

		logger.Logger.InfoContext(ctx, "registered machine", "machineID", resp.MachineID)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "registered machine")
		return printJSON(cmd, resp)
	},
}

func init() {
	flags := registerCmd.Flags()
	flags.StringVar(&registration.RegistrationKey, "registration-key", "", "owner registration key")
	flags.StringVar(&registration.FuzzerName, "fuzzer-name", "", "name of the fuzzer running here")
	flags.StringVar(&registration.Target, "target", "", "fuzzing target")
	flags.StringVar(&registration.PubIP, "pub-ip", "", "public address of this machine")
	flags.StringVar(&registration.PriIP, "pri-ip", "", "private address of this machine")

	_ = registerCmd.MarkFlagRequired("registration-key")
	_ = registerCmd.MarkFlagRequired("fuzzer-name")
}
