// Package flags holds the cli flags and setup helpers shared by the
// institution registry commands.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/instidoc/institution-registry-backend/common"
	"github.com/instidoc/institution-registry-backend/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

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

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var InstitutionNameFlag = &cli.StringFlag{
	Name:     "institution-name",
	Required: true,
	Usage:    "institution name, bound into the signature domain",
}

var AdminAddrFlag = &cli.StringFlag{
	Name:     "admin-addr",
	Required: true,
	Usage:    "administrator address. 40-char hex string with no 0x prefix",
}

var NFTNameFlag = &cli.StringFlag{
	Name:  "nft-name",
	Value: "Institutional Documents",
	Usage: "certificate collection name",
}

var NFTSymbolFlag = &cli.StringFlag{
	Name:  "nft-symbol",
	Value: "IDOC",
	Usage: "certificate collection symbol",
}

var DomainVersionFlag = &cli.StringFlag{
	Name:  "domain-version",
	Value: "1",
	Usage: "signature domain version; bump on redeploy to invalidate old signatures",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:  "storage",
	Value: cli.NewStringSlice("file:///var/lib/instidoc/content/"),
	Usage: "content store location URIs, repeatable for multi-store redundancy",
}

var KeyFileFlag = &cli.StringFlag{
	Name:  "key-file",
	Value: "approval.key",
	Usage: "path to the encrypted signer key file",
}

var KeyPasswordFlag = &cli.StringFlag{
	Name:    "key-password",
	Usage:   "password for the signer key file",
	EnvVars: []string{"INSTIDOC_KEY_PASSWORD"},
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
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
