package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/samcharles93/boost/internal/api"
	"github.com/samcharles93/boost/internal/boost"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/samcharles93/boost/internal/webui"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		ui          bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the constrained generation REST API",
		Flags: append(append(commonModelFlags(), samplerFlags()...),
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
			&cli.BoolFlag{
				Name:        "ui",
				Usage:       "serve the playground page at /",
				Value:       true,
				Destination: &ui,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			applySamplerConfig(cmd, cfg)
			applyServeConfig(cmd, cfg, &addr)

			m, err := buildVariant()
			if err != nil {
				return err
			}
			sampler, err := samplerConfig()
			if err != nil {
				return err
			}
			server := api.NewServer(api.Config{
				Model:   m,
				Sampler: sampler,
				Options: []boost.Option{boost.WithStrict(strict)},
				Log:     log,
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			if ui {
				playground := webui.Handler()
				e.GET("/*", func(c *echo.Context) error {
					playground.ServeHTTP(c.Response(), c.Request())
					return nil
				})
			}
			log.Info("starting server", "address", addr, "backend", m.Kind().String())
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
