package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/sweetmon/triage-api/internal/types"
)

var heartbeat types.Heartbeat

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send a heartbeat, optionally refreshing this machine's addresses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "pingCmd")
		defer span.End()

		c, err := newClient(true)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build client")
			return err
		}

		resp, err := c.Ping(ctx, heartbeat)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ping")
			return exitFor(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "pinged")
		return printJSON(cmd, resp)
	},
}

func init() {
	pingCmd.Flags().StringVar(&heartbeat.PubIP, "pub-ip", "", "public address of this machine")
	pingCmd.Flags().StringVar(&heartbeat.PriIP, "pri-ip", "", "private address of this machine")
}
