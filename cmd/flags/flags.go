package flags

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/ruteri/functions-gemini-relay/common"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/relay"
	"github.com/ruteri/functions-gemini-relay/request"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var SourceFlag = &cli.StringFlag{
	Name:  "source",
	Value: request.DefaultSourcePath,
	Usage: "path to the Functions JavaScript source",
}

var ArgsFlag = &cli.StringSliceFlag{
	Name:  "arg",
	Value: cli.NewStringSlice(request.DefaultArgs...),
	Usage: "request argument passed to the source as args[i], repeatable",
}

var ReturnTypeFlag = &cli.StringFlag{
	Name:  "return-type",
	Value: "string",
	Usage: "expected return type of the source: 'string' or 'uint256'",
}

var CallbackTimeoutFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: relay.DefaultCallbackTimeout,
	Usage: "how long to wait for the DON callback",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

// With returns CommonFlags plus the service tag flag and extra.
func With(service string, extra ...cli.Flag) []cli.Flag {
	out := append([]cli.Flag{}, CommonFlags...)
	out = append(out, LogServiceFlagFn(service))
	return append(out, extra...)
}

// RequiredEnv describes the environment a flow needs, for command help.
func RequiredEnv(flow config.Flow) string {
	names := config.Required(flow)
	if len(names) == 0 {
		return ""
	}
	return "Requires " + strings.Join(names, ", ") + " in the environment or .env."
}
