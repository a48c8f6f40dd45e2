// Command detect runs the detection pipeline over image files and prints
// the filtered detections with per-label counts and scene density.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/config"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/server"
	"github.com/nvr-ai/go-yolo/util"
)

type fileResult struct {
	Path string `json:"path"`
	server.Result
}

func main() {
	var (
		configPath string
		bundleRoot string
		logLevel   string
		asJSON     bool
		timeout    time.Duration
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&bundleRoot, "bundle", "", "Model bundle directory (overrides bundle.root)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (overrides log_level)")
	flag.BoolVar(&asJSON, "json", false, "Print one JSON object per image")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Per-image detection timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <image|dir>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			logrus.Fatal(err)
		}
	}
	if bundleRoot != "" {
		cfg.Bundle.Root = bundleRoot
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}
	logger := cfg.Logger()

	files, err := util.ExpandPaths(flag.Args())
	if err != nil {
		logger.Fatal(err)
	}

	app, err := server.Build(cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.WithError(err).Warn("failed to release models")
		}
	}()

	enc := json.NewEncoder(os.Stdout)
	for _, f := range files {
		res, err := detectFile(app, f, timeout)
		if err != nil {
			logger.WithError(err).WithField("path", f.Path).Error("detection failed")
			continue
		}
		if asJSON {
			if err := enc.Encode(fileResult{Path: f.Path, Result: res}); err != nil {
				logger.Fatal(err)
			}
			continue
		}
		printResult(f.Path, res)
	}
}

func detectFile(app *server.App, f util.ImageFile, timeout time.Duration) (server.Result, error) {
	img, err := images.Decode(f.Data)
	if err != nil {
		return server.Result{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	dets, err := app.Detector.DetectSync(ctx, img)
	if err != nil {
		return server.Result{}, err
	}
	return app.Analyzer.Analyze(img, dets, app.Detector.AvailableClassNames()), nil
}

func printResult(path string, res server.Result) {
	fmt.Printf("%s (%dx%d): %d objects, density %d\n", path, res.Width, res.Height, len(res.Detections), res.Score)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, d := range res.Detections {
		px := d.Box.Scale(res.Width, res.Height)
		fmt.Fprintf(tw, "  %s\t%.2f\t[%.0f %.0f %.0f %.0f]\n", d.Label, d.Confidence, px.X, px.Y, px.Width, px.Height)
	}
	for _, c := range res.Counts {
		fmt.Fprintf(tw, "  = %s\t%d\n", c.Label, c.Count)
	}
	_ = tw.Flush()
}
