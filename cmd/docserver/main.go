package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/instidoc/institution-registry-backend/cmd/flags"
	"github.com/instidoc/institution-registry-backend/factory"
	"github.com/instidoc/institution-registry-backend/httpserver"
	"github.com/instidoc/institution-registry-backend/interfaces"
	"github.com/instidoc/institution-registry-backend/storage"
)

var serverFlags []cli.Flag = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	flags.InstitutionNameFlag,
	flags.AdminAddrFlag,
	flags.NFTNameFlag,
	flags.NFTSymbolFlag,
	flags.DomainVersionFlag,
	flags.StorageFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "docserver",
		Usage: "Serve the institutional document lifecycle API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			logger := flags.SetupLogger(cCtx)

			admin, err := interfaces.NewAddressFromHex(cCtx.String(flags.AdminAddrFlag.Name))
			if err != nil {
				logger.Error("Invalid admin address", "err", err)
				return err
			}

			inst, err := factory.New(factory.Config{
				Name:      cCtx.String(flags.InstitutionNameFlag.Name),
				NFTName:   cCtx.String(flags.NFTNameFlag.Name),
				NFTSymbol: cCtx.String(flags.NFTSymbolFlag.Name),
				Version:   cCtx.String(flags.DomainVersionFlag.Name),
				Admin:     admin,
				Log:       logger,
			})
			if err != nil {
				logger.Error("Failed to deploy institution", "err", err)
				return err
			}

			storageFactory := storage.NewStoreFactory(logger)
			locations := make([]interfaces.ContentLocation, 0)
			for _, uri := range cCtx.StringSlice(flags.StorageFlag.Name) {
				locations = append(locations, interfaces.ContentLocation(uri))
			}
			store, err := storageFactory.CreateMultiStore(locations)
			if err != nil {
				logger.Error("Failed to create content store", "err", err)
				return err
			}

			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
			handler := httpserver.NewHandler(inst, store, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

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
