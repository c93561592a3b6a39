// The storaged command serves the media storage orchestration layer: it
// loads category defaults and tenant bindings, resolves storage backends per
// tenant and content category, and exposes the operational HTTP API.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/mediastack/media-storage-backend/common"
	"github.com/mediastack/media-storage-backend/httpserver"
	"github.com/mediastack/media-storage-backend/interfaces"
	"github.com/mediastack/media-storage-backend/orchestrator"
	"github.com/mediastack/media-storage-backend/storage"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for the admin API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringFlag{
		Name:  "bindings-file",
		Value: "",
		Usage: "JSON file with category defaults and tenant storage bindings",
	},
	&cli.StringFlag{
		Name:  "local-root",
		Value: "/var/lib/storaged",
		Usage: "root directory for the local fallback backend",
	},
	&cli.StringFlag{
		Name:  "vault-addr",
		Value: "",
		Usage: "Vault address for resolving credential references (optional)",
	},
	&cli.StringFlag{
		Name:  "vault-token",
		Value: "",
		Usage: "Vault token (required if vault-addr is set)",
	},
	&cli.IntFlag{
		Name:  "dircache-capacity",
		Value: storage.DefaultDirCacheCapacity,
		Usage: "max entries in the directory existence cache",
	},
	&cli.Int64Flag{
		Name:  "dircache-ttl-seconds",
		Value: int64(storage.DefaultDirCacheTTL / time.Second),
		Usage: "TTL in seconds for directory existence cache entries",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: common.PackageName,
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "storaged",
		Usage: "Serve the media storage orchestration API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			metricsAddr := cCtx.String("metrics-addr")
			bindingsFile := cCtx.String("bindings-file")
			localRoot := cCtx.String("local-root")
			vaultAddr := cCtx.String("vault-addr")
			vaultToken := cCtx.String("vault-token")
			cacheCapacity := cCtx.Int("dircache-capacity")
			cacheTTL := time.Duration(cCtx.Int64("dircache-ttl-seconds")) * time.Second
			logJSON := cCtx.Bool("log-json")
			logDebug := cCtx.Bool("log-debug")
			logUID := cCtx.Bool("log-uid")
			logService := cCtx.String("log-service")
			enablePprof := cCtx.Bool("pprof")
			drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

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

			factory := storage.NewFactory(logger).
				WithDirCache(storage.NewDirCache(cacheCapacity, cacheTTL))

			fallback := interfaces.BackendConfig{
				Kind:    interfaces.KindLocal,
				RootDir: localRoot,
			}
			orc, err := orchestrator.New(factory, fallback, logger)
			if err != nil {
				logger.Error("Failed to create orchestrator", "err", err)
				return err
			}

			if vaultAddr != "" {
				creds, err := orchestrator.NewVaultCredentials(vaultAddr, vaultToken)
				if err != nil {
					logger.Error("Failed to create Vault credential resolver", "err", err)
					return err
				}
				orc = orc.WithCredentialResolver(creds)
				logger.Info("Vault credential resolution enabled", "address", vaultAddr)
			}

			if bindingsFile != "" {
				logger.Info("Loading storage bindings", "file", bindingsFile)
				f, err := os.Open(bindingsFile)
				if err != nil {
					logger.Error("Failed to open bindings file", "err", err)
					return err
				}
				err = orc.LoadBindings(f)
				f.Close()
				if err != nil {
					logger.Error("Failed to load bindings", "err", err)
					return err
				}
			}

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               listenAddr,
				MetricsAddr:              metricsAddr,
				Log:                      logger,
				EnablePprof:              enablePprof,
				DrainDuration:            drainDuration,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			handler := httpserver.NewHandler(orc, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
