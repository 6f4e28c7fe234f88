// Command landscape evaluates the loss landscape of a trained model over a
// dataset record store and writes the result matrices, heat maps and a
// surface plot to the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tsawler/go-landscape/config"
	"github.com/tsawler/go-landscape/engine"
	"github.com/tsawler/go-landscape/landscape"
	"github.com/tsawler/go-landscape/report"
	"github.com/tsawler/go-landscape/vision/dataloader"
	"github.com/tsawler/go-landscape/vision/dataset"
	"github.com/tsawler/go-landscape/vision/preprocessing"
)

func main() {
	configPath := flag.String("config", "", "JSON config file")
	modelPath := flag.String("model", "", "model checkpoint (JSON)")
	datasetPath := flag.String("dataset", "", "record store (sqlite)")
	meanPath := flag.String("mean", "", "mean image (serialized blob)")
	cacheDir := flag.String("cache", "", "grid cache directory")
	outputDir := flag.String("out", "", "output directory")
	steps := flag.Int("steps", 0, "grid points per direction")
	sampleCap := flag.Int("samples", 0, "records read per dataset pass")
	workers := flag.Int("workers", 0, "cells evaluated in parallel")
	seed := flag.Uint64("seed", 0, "random seed for the directions")
	strict := flag.Bool("strict-cache", false, "fail on a stale grid cache")
	sidecar := flag.String("sidecar", "", "plotting sidecar URL")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Flags that were given override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.ModelPath = *modelPath
		case "dataset":
			cfg.DatasetPath = *datasetPath
		case "mean":
			cfg.MeanImagePath = *meanPath
		case "cache":
			cfg.CacheDirectory = *cacheDir
		case "out":
			cfg.OutputDirectory = *outputDir
		case "steps":
			cfg.Steps = *steps
		case "samples":
			cfg.SampleCap = *sampleCap
		case "workers":
			cfg.Workers = *workers
		case "seed":
			cfg.Seed = *seed
		case "strict-cache":
			cfg.StrictCache = *strict
		case "sidecar":
			cfg.SidecarURL = *sidecar
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.ModelPath == "" || cfg.DatasetPath == "" {
		log.Fatalf("Both a model (-model) and a dataset (-dataset) are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("=== Loss Landscape ===")

	model, err := engine.LoadCheckpoint(cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	if model.InputSize() != cfg.ImageLen() {
		log.Fatalf("Model expects %d inputs but image_shape %v has %d", model.InputSize(), cfg.ImageShape, cfg.ImageLen())
	}
	modelName := strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
	report.PrintArchitecture(os.Stdout, modelName, model.ModelSpec())

	store, err := dataset.Open(cfg.DatasetPath)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	defer store.Close()

	records, err := store.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count records: %v", err)
	}
	fmt.Printf("📁 Dataset %s: %d records\n", cfg.DatasetPath, records)

	loader := dataloader.NewLoader(store, dataloader.Config{
		BatchSize:    cfg.BatchSize,
		NumWorkers:   cfg.Workers,
		MaxCacheSize: min(cfg.CacheSize, cfg.SampleCap),
		ImageHeight:  cfg.ImageShape[1],
		ImageWidth:   cfg.ImageShape[2],
	})

	var mean []float64
	if cfg.MeanImagePath != "" {
		meanImage, err := preprocessing.LoadMeanImage(cfg.MeanImagePath, cfg.ImageShape)
		if err != nil {
			log.Fatalf("Failed to load mean image: %v", err)
		}
		mean = meanImage.Data
	}

	evaluator := &landscape.Evaluator{
		Model: model,
		Dataset: landscape.DatasetFunc(func(ctx context.Context) (landscape.Cursor, error) {
			cursor, err := loader.Open(ctx)
			if err != nil {
				return nil, err
			}
			return cursor, nil
		}),
		Mean:      mean,
		Steps:     cfg.Steps,
		SampleCap: cfg.SampleCap,
		Workers:   cfg.Workers,
		Rand:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
	}
	if cfg.CacheDirectory != "" {
		evaluator.Cache = landscape.NewGridCache(cfg.CacheDirectory, cfg.StrictCache)
	}

	progress := report.NewProgressBar("Landscape", cfg.Steps*cfg.Steps)
	progress.SetUnit("cell")
	evaluator.OnCell = progress.CellReporter()

	fmt.Printf("\n🚀 Evaluating %d×%d grid over up to %d samples with %d worker(s)\n", cfg.Steps, cfg.Steps, cfg.SampleCap, cfg.Workers)
	res, err := evaluator.Run(ctx)
	if err != nil {
		log.Fatalf("Landscape evaluation failed: %v", err)
	}
	progress.Finish()
	fmt.Printf("📊 Decoded-image cache: %s\n", loader.Stats())

	summary, err := report.NewWriter(cfg.OutputDirectory, modelName).Write(res)
	if err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}

	fmt.Printf("\n✅ Run %s finished in %s\n", res.RunID, res.Elapsed.Round(time.Millisecond))
	fmt.Printf("   Parameters: %d, network norm %.6f\n", res.ParamCount, res.NetworkNorm)
	fmt.Printf("   Default loss: %.6f\n", res.DefaultLoss)
	fmt.Printf("   %d out of %d were classified correctly\n", res.References.Correct, res.References.Count)
	fmt.Printf("\n📁 Generated Files in %s:\n", cfg.OutputDirectory)
	for _, name := range summary.Files {
		fmt.Printf("  - %s\n", name)
	}

	if cfg.SidecarURL != "" {
		sendToSidecar(ctx, cfg.SidecarURL, modelName, res)
	}
}

// sendToSidecar pushes the best-sample surface to the plotting service.
// Failures are reported but do not fail the run.
func sendToSidecar(ctx context.Context, url, modelName string, res *landscape.Result) {
	sidecarConfig := report.DefaultPlottingServiceConfig()
	sidecarConfig.BaseURL = url
	service := report.NewPlottingService(sidecarConfig)
	service.Enable()

	if err := service.CheckHealth(ctx); err != nil {
		fmt.Printf("⚠️  Plotting service unavailable: %v\n", err)
		return
	}
	resp, err := service.SendPlotDataWithRetry(ctx, report.SurfacePlotData(modelName, res))
	if err != nil {
		fmt.Printf("⚠️  Failed to send surface: %v\n", err)
		return
	}
	fmt.Printf("📈 Surface available at %s\n", resp.ViewURL)
}
