// Command detectd serves the detection pipeline over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/config"
	"github.com/nvr-ai/go-yolo/server"
)

func main() {
	var (
		configPath string
		addr       string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			logrus.Fatal(err)
		}
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger := cfg.Logger()

	app, err := server.Build(cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(app.Detector, app.Analyzer, app.Profiler, cfg.Server, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.WithError(err).Error("server stopped")
	}
	if err := app.Close(); err != nil {
		logger.WithError(err).Warn("failed to release models")
	}
}
