// Command benchmark measures detection throughput over a set of scenarios.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/benchmark"
	"github.com/nvr-ai/go-yolo/config"
	"github.com/nvr-ai/go-yolo/server"
	"github.com/nvr-ai/go-yolo/util"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Path to a YAML config file")
		scenarioFile  = flag.String("scenarios", "", "Path to a JSON scenario set")
		outputDir     = flag.String("output", "./benchmark_results", "Output directory for results")
		testImages    = flag.String("images", "", "Image file or directory used as frames (default: synthetic)")
		comprehensive = flag.Bool("comprehensive", false, "Run every resolution in every format")
		iterations    = flag.Int("iterations", 50, "Iterations per scenario")
		timeout       = flag.Duration("timeout", 30*time.Minute, "Benchmark timeout duration")
	)
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			logrus.Fatal(err)
		}
	}
	logger := cfg.Logger()

	var set *benchmark.ScenarioSet
	switch {
	case *scenarioFile != "":
		var err error
		if set, err = benchmark.LoadScenarioSet(*scenarioFile); err != nil {
			logger.Fatal(err)
		}
	case *comprehensive:
		set = benchmark.ComprehensiveScenarios(*iterations)
	default:
		set = benchmark.QuickScenarios(*iterations)
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

	suite := benchmark.NewSuite(app.Detector, *outputDir, logger)
	suite.AddScenarioSet(set)
	if *testImages != "" {
		files, err := util.ExpandPaths([]string{*testImages})
		if err != nil {
			logger.Fatal(err)
		}
		if err := suite.LoadCorpus(files); err != nil {
			logger.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	logger.WithFields(logrus.Fields{"set": set.Name, "scenarios": len(set.Scenarios)}).Info("running benchmark")
	if err := suite.RunAllScenarios(ctx); err != nil {
		logger.WithError(err).Error("benchmark interrupted")
	}
	path, err := suite.SaveResults()
	if err != nil {
		logger.Fatal(err)
	}
	logger.WithField("path", path).Info("results saved")
}
