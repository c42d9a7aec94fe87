package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/hyeh20/protein-sequence/internal/api"
	"github.com/hyeh20/protein-sequence/internal/ensemble"
	"github.com/hyeh20/protein-sequence/internal/model"
	"github.com/hyeh20/protein-sequence/internal/weights"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the geometry ensemble over REST",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, LoadConfig(), &addr)
			log := buildLogger()

			var prov *weights.Provisioner
			if weightsDir != "" {
				prov = weights.NewProvisioner(weightsDir, log)
			} else {
				log.Warn("no weights directory configured, members run with initial parameters")
			}
			ens, err := ensemble.New(model.Config{Blocks: int(blocks), Decoder: true}, modelIDs, prov, log)
			if ens == nil {
				return err
			}
			if err != nil {
				log.Warn("serving a partial ensemble", "error", err)
			}

			server := api.NewServer(ens, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "members", ens.Size())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
