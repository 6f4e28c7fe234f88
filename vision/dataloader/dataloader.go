// Package dataloader turns a record store into a stream of model-ready
// images: records are decoded, mean-subtracted and cached between scans.
package dataloader

import (
	"context"
	"fmt"

	"github.com/tsawler/go-landscape/vision/dataset"
	"github.com/tsawler/go-landscape/vision/preprocessing"
)

// Config holds configuration for a Loader
type Config struct {
	BatchSize    int // records decoded together
	NumWorkers   int // parallel decoders per batch
	MaxCacheSize int // decoded images kept between scans, 0 disables
	ImageHeight  int // resize target for encoded records, 0 keeps native size
	ImageWidth   int
	Mean         *preprocessing.MeanImage // subtracted from every image when set
	CacheManager *CacheManager            // optional shared cache
}

// Loader reads every record of a store in key order. It is safe to open
// several cursors at once; they share the decoded-image cache.
type Loader struct {
	store     *dataset.RecordStore
	processor *preprocessing.ImageProcessor
	mean      *preprocessing.MeanImage
	cache     *CacheManager
	batchSize int
	workers   int
}

// NewLoader creates a loader over store
func NewLoader(store *dataset.RecordStore, config Config) *Loader {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}

	cache := config.CacheManager
	if cache == nil {
		cache = NewCacheManager(config.MaxCacheSize)
	}

	return &Loader{
		store:     store,
		processor: preprocessing.NewImageProcessor(config.ImageHeight, config.ImageWidth),
		mean:      config.Mean,
		cache:     cache,
		batchSize: config.BatchSize,
		workers:   config.NumWorkers,
	}
}

// Open starts a fresh scan from the first record
func (l *Loader) Open(ctx context.Context) (*Cursor, error) {
	records, err := l.store.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	return &Cursor{ctx: ctx, loader: l, records: records}, nil
}

// Stats returns cache statistics
func (l *Loader) Stats() string {
	return l.cache.Stats().String()
}

// ClearCache clears the decoded-image cache
func (l *Loader) ClearCache() {
	l.cache.Clear()
}

// GetCacheManager returns the cache manager for sharing between loaders
func (l *Loader) GetCacheManager() *CacheManager {
	return l.cache
}

// Cursor yields decoded images one at a time, reading ahead a batch.
type Cursor struct {
	ctx     context.Context
	loader  *Loader
	records *dataset.Cursor

	batch    []Item
	next     int
	current  Item
	position int
	done     bool
	err      error
}

// Next advances to the next image
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.next >= len(c.batch) {
		if c.done {
			return false
		}
		if err := c.fill(); err != nil {
			c.err = err
			return false
		}
		if len(c.batch) == 0 {
			return false
		}
	}
	c.current = c.batch[c.next]
	c.next++
	c.position++
	return true
}

// fill reads and decodes the next batch of records. Cached records skip
// decoding.
func (c *Cursor) fill() error {
	c.batch = c.batch[:0]
	c.next = 0

	var keys []string
	var missing [][]byte
	var missingIdx []int
	for len(keys) < c.loader.batchSize {
		if !c.records.Next() {
			if err := c.records.Err(); err != nil {
				return err
			}
			c.done = true
			break
		}
		r := c.records.Record()
		keys = append(keys, r.Key)
		if item, ok := c.loader.cache.Get(r.Key); ok {
			c.batch = append(c.batch, item)
			continue
		}
		c.batch = append(c.batch, Item{})
		missing = append(missing, r.Value)
		missingIdx = append(missingIdx, len(c.batch)-1)
	}

	if len(missing) == 0 {
		return nil
	}

	images, labels, err := preprocessing.DecodeBatch(c.ctx, missing, c.loader.processor, c.loader.workers)
	if err != nil {
		return err
	}
	for i, img := range images {
		if c.loader.mean != nil {
			if err := c.loader.mean.Subtract(img); err != nil {
				return fmt.Errorf("record %s: %w", keys[missingIdx[i]], err)
			}
		}
		item := Item{Image: img, Label: labels[i]}
		c.batch[missingIdx[i]] = item
		c.loader.cache.Put(keys[missingIdx[i]], item)
	}
	return nil
}

// Image returns the current mean-subtracted image. It must not be modified.
func (c *Cursor) Image() []float64 {
	return c.current.Image
}

// Label returns the current label
func (c *Cursor) Label() int {
	return c.current.Label
}

// Position returns how many images have been yielded so far
func (c *Cursor) Position() int {
	return c.position
}

// Err returns the first error encountered while iterating
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying record cursor
func (c *Cursor) Close() error {
	return c.records.Close()
}
