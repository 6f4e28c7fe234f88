// Command landscape-import loads a class-per-directory image tree into a
// record store and computes the mean image the landscape run subtracts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tsawler/go-landscape/config"
	"github.com/tsawler/go-landscape/report"
	"github.com/tsawler/go-landscape/vision/dataloader"
	"github.com/tsawler/go-landscape/vision/dataset"
	"github.com/tsawler/go-landscape/vision/preprocessing"
)

func main() {
	root := flag.String("images", "", "image tree laid out as <root>/<class>/<image>")
	storePath := flag.String("store", "dataset.db", "record store to create")
	meanPath := flag.String("mean", "mean.binaryproto", "mean image to write")
	configPath := flag.String("config", "", "write a run config pointing at the store and mean")
	height := flag.Int("height", 32, "image height")
	width := flag.Int("width", 32, "image width")
	extensions := flag.String("ext", ".jpg,.jpeg,.png", "comma separated image extensions")
	batchSize := flag.Int("batch", 256, "records per transaction")
	flag.Parse()

	if *root == "" {
		log.Fatalf("An image tree (-images) is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("=== Landscape Dataset Import ===")

	folder, err := dataset.NewImageFolder(*root, strings.Split(*extensions, ","))
	if err != nil {
		log.Fatalf("Failed to scan images: %v", err)
	}
	fmt.Print(folder)

	store, err := dataset.Create(*storePath)
	if err != nil {
		log.Fatalf("Failed to create record store: %v", err)
	}
	defer store.Close()

	if err := folder.Import(ctx, store, *batchSize); err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count records: %v", err)
	}
	fmt.Printf("✅ Imported %d records into %s\n", count, *storePath)

	shape := []int{3, *height, *width}
	mean, err := computeMean(ctx, store, shape, count)
	if err != nil {
		log.Fatalf("Failed to compute mean image: %v", err)
	}
	if err := mean.Save(*meanPath); err != nil {
		log.Fatalf("Failed to save mean image: %v", err)
	}
	fmt.Printf("✅ Mean image %v written to %s\n", shape, *meanPath)

	if *configPath != "" {
		cfg := config.Default()
		cfg.DatasetPath, _ = filepath.Abs(*storePath)
		cfg.MeanImagePath, _ = filepath.Abs(*meanPath)
		cfg.ImageShape = shape
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("✅ Run config written to %s\n", *configPath)
	}
}

// computeMean decodes every record once and averages the images
func computeMean(ctx context.Context, store *dataset.RecordStore, shape []int, total int) (*preprocessing.MeanImage, error) {
	loader := dataloader.NewLoader(store, dataloader.Config{
		BatchSize:   64,
		NumWorkers:  4,
		ImageHeight: shape[1],
		ImageWidth:  shape[2],
	})
	cursor, err := loader.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	progress := report.NewProgressBar("Mean image", total)
	progress.SetUnit("image")

	acc := preprocessing.NewMeanAccumulator(shape)
	done := 0
	for cursor.Next() {
		if err := acc.Add(cursor.Image()); err != nil {
			return nil, fmt.Errorf("record %d: %w", cursor.Position(), err)
		}
		done++
		progress.Update(done, nil)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	progress.Finish()
	return acc.Mean()
}
