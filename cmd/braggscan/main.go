package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"braggscan/pkg/config"
	"braggscan/pkg/pipeline"
	"braggscan/pkg/report"
	"braggscan/pkg/visualization"
)

func main() {
	// Parse command line arguments
	input := flag.String("input", "", "TIFF image or directory of TIFF images")
	configPath := flag.String("config", "", "YAML configuration file")
	output := flag.String("output", "report.yaml", "Report output file")
	numCores := flag.Int("cores", 0, "Number of images analyzed in parallel (default: from config)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	overlays := flag.Bool("overlays", false, "Save detection overlays")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results for every stage")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this file and exit")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	// Validate inputs
	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment: %v\n", err)
		os.Exit(1)
	}

	// Command line flags override the file and the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "verbose":
			cfg.Output.Verbose = *verbose
		case "overlays":
			cfg.Output.Overlays = *overlays
		case "save-intermediary":
			cfg.Output.SaveIntermediaryResults = *saveIntermediary
		}
	})

	log := initLogger(cfg.Output.Verbose)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	paths, err := inputPaths(*input)
	if err != nil {
		log.WithError(err).Fatal("Failed to list input images")
	}
	if len(paths) == 0 {
		log.WithField("input", *input).Fatal("No TIFF images found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"images": len(paths),
		"cores":  cfg.Processing.NumCores,
	}).Info("Starting defect detection")

	startTime := time.Now()
	analyzer := pipeline.NewAnalyzer(cfg, log)
	items := analyzer.RunBatch(ctx, paths)

	if cfg.Output.Overlays {
		saveOverlays(log, cfg.Output.OverlayDir, items)
	}

	if err := report.Write(*output, items); err != nil {
		log.WithError(err).Fatal("Failed to write report")
	}

	failed := pipeline.Failed(items)
	log.WithFields(logrus.Fields{
		"images":   len(items),
		"failed":   len(failed),
		"report":   *output,
		"duration": time.Since(startTime).Round(time.Millisecond),
	}).Info("Defect detection finished")

	if cfg.Output.SaveIntermediaryResults {
		log.WithField("dir", cfg.Output.IntermediaryDir).Info("Intermediary results saved")
	}

	if len(failed) > 0 {
		os.Exit(1)
	}
}

// initLogger initializes the logger based on verbose mode
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

// inputPaths expands a directory into its TIFF images; a file is used as is
func inputPaths(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{input}, nil
	}
	return pipeline.ListImages(input)
}

// Blob close-ups written next to each overlay
const (
	regionMargin = 4
	regionZoom   = 4
)

// saveOverlays writes <dir>/<key>.png and one close-up per blob under
// <dir>/<key>/ for every analyzed image
func saveOverlays(log logrus.FieldLogger, dir string, items []pipeline.BatchItem) {
	for _, it := range items {
		if it.Err != nil {
			continue
		}
		ilog := log.WithField("image", it.Path)

		viewer, err := visualization.NewViewer(it.Result)
		if err != nil {
			ilog.WithError(err).Warn("Cannot draw overlay")
			continue
		}

		key := it.Key()
		if err := viewer.SaveOverlay(filepath.Join(dir, key+".png")); err != nil {
			ilog.WithError(err).Warn("Failed to save overlay")
		}
		if err := viewer.SaveBlobRegions(filepath.Join(dir, key), regionMargin, regionZoom); err != nil {
			ilog.WithError(err).Warn("Failed to save blob regions")
		}
	}
}
