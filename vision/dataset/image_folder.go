package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tsawler/go-landscape/vision/blob"
)

// ImageFolder lists images laid out as root/<class>/<image>. Classes are
// numbered in lexical order of their directory names.
type ImageFolder struct {
	imagePaths []string
	labels     []int
	classNames []string
	classToIdx map[string]int
}

// NewImageFolder scans root for class subdirectories
func NewImageFolder(root string, extensions []string) (*ImageFolder, error) {
	if len(extensions) == 0 {
		extensions = []string{".jpg", ".jpeg", ".png"}
	}

	folder := &ImageFolder{
		classToIdx: make(map[string]int),
	}

	// Find all classes (subdirectories)
	classes, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	classIdx := 0
	for _, classPath := range classes {
		info, err := os.Stat(classPath)
		if err != nil || !info.IsDir() {
			continue
		}

		className := filepath.Base(classPath)
		folder.classNames = append(folder.classNames, className)
		folder.classToIdx[className] = classIdx

		var files []string
		for _, ext := range extensions {
			matches, err := filepath.Glob(filepath.Join(classPath, "*"+ext))
			if err != nil {
				continue
			}
			files = append(files, matches...)
		}
		sort.Strings(files)

		for _, file := range files {
			folder.imagePaths = append(folder.imagePaths, file)
			folder.labels = append(folder.labels, classIdx)
		}

		classIdx++
	}

	if len(folder.imagePaths) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}

	return folder, nil
}

// Len returns the number of images found
func (f *ImageFolder) Len() int {
	return len(f.imagePaths)
}

// GetItem returns the image path and label at the given index
func (f *ImageFolder) GetItem(index int) (string, int, error) {
	if index < 0 || index >= len(f.imagePaths) {
		return "", 0, fmt.Errorf("index %d out of range [0, %d)", index, len(f.imagePaths))
	}
	return f.imagePaths[index], f.labels[index], nil
}

// NumClasses returns the number of classes
func (f *ImageFolder) NumClasses() int {
	return len(f.classNames)
}

// ClassNames returns the list of class names
func (f *ImageFolder) ClassNames() []string {
	return f.classNames
}

// ClassDistribution returns the number of images per class
func (f *ImageFolder) ClassDistribution() map[string]int {
	dist := make(map[string]int)
	for _, label := range f.labels {
		dist[f.classNames[label]]++
	}
	return dist
}

// Key returns the record key used for the image at index. Keys sort in
// scan order.
func (f *ImageFolder) Key(index int) string {
	rel := filepath.Base(f.imagePaths[index])
	return fmt.Sprintf("%08d_%s_%s", index, f.classNames[f.labels[index]], rel)
}

// Import writes every image into store as an encoded Datum, batchSize
// records per transaction.
func (f *ImageFolder) Import(ctx context.Context, store *RecordStore, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 256
	}

	batch := make([]Record, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.PutBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for i, path := range f.imagePaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read image %s: %w", path, err)
		}
		datum := &blob.Datum{Data: data, Label: int32(f.labels[i]), Encoded: true}
		batch = append(batch, Record{Key: f.Key(i), Value: datum.Marshal()})
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// String returns a string representation of the folder
func (f *ImageFolder) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ImageFolder: %d samples, %d classes\n", len(f.imagePaths), len(f.classNames)))
	sb.WriteString("Class distribution:\n")

	dist := f.ClassDistribution()
	for _, className := range f.classNames {
		sb.WriteString(fmt.Sprintf("  %s: %d samples\n", className, dist[className]))
	}

	return sb.String()
}
