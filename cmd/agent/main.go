package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.opentelemetry.io/otel"

	"github.com/sweetmon/triage-api/cmd/agent/cmds"
	"github.com/sweetmon/triage-api/internal/logger"
	triageotel "github.com/sweetmon/triage-api/internal/otel"
	workererrors "github.com/sweetmon/triage-api/internal/worker_errors"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/agent")

func runApp(ctx context.Context) int {
	useOTLP, err := strconv.ParseBool(os.Getenv("USE_OTLP"))
	if err != nil {
		useOTLP = false
	}

	shutdown, err := triageotel.SetupOTelSDK(ctx, "triage-agent", useOTLP, triageotel.WithWriter(os.Stderr))
	if err != nil {
		logger.Logger.Warn("failed to setup otel sdk", "error", err)
	}
	defer func() {
		fail := shutdown(context.WithoutCancel(ctx))
		if fail != nil {
			logger.Logger.Warn("no clean shutdown for otel", "error", fail)
		}
	}()

	ctx, span := tracer.Start(ctx, "Agent")
	defer span.End()

	err = cmds.Execute(ctx)
	if err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)

		var ee workererrors.ExitError
		if errors.As(err, &ee) {
			return ee.Code
		}
		return workererrors.ExitErrored
	}

	return workererrors.ExitNormal
}

func main() {
	logger.InitSlog()
	logger.LogLevel.Set(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runApp(ctx)
	stop()

	os.Exit(code)
}
