package landscape

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-landscape/monitoring"
	"github.com/tsawler/go-landscape/vision/blob"
)

// Artifact names inside a grid cache directory
const (
	Grid1Name      = "vector_grid1"
	Grid2Name      = "vector_grid2"
	DirectionsName = "directions"
	ManifestName   = "manifest.json"

	blobExt = ".blob"
)

// Manifest describes the run that produced the cached grids
type Manifest struct {
	RunID          string    `json:"run_id"`
	Dimension      int       `json:"dimension"`
	Steps          int       `json:"steps"`
	LayoutHash     string    `json:"layout_hash"`
	DirectionsHash string    `json:"directions_hash"`
	CreatedAt      time.Time `json:"created_at"`
}

// GridCache persists grids in a directory so a later run can replay them
// bit for bit. Files are written to a temporary name and renamed, so
// readers never see partial artifacts.
type GridCache struct {
	Dir string
	// Strict turns a direction or layout hash mismatch into ErrCacheMismatch
	// instead of a warning.
	Strict bool
}

// NewGridCache returns a cache rooted at dir
func NewGridCache(dir string, strict bool) *GridCache {
	return &GridCache{Dir: dir, Strict: strict}
}

func (c *GridCache) path(name string) string {
	if name == ManifestName {
		return filepath.Join(c.Dir, name)
	}
	return filepath.Join(c.Dir, name+blobExt)
}

// Load returns the cached grids when both exist. ok is false on a cache
// miss. Grids that are not steps×dimension fail with ErrCacheMismatch.
// want carries the current run's hashes to compare with the manifest.
func (c *GridCache) Load(steps int, want Manifest) (grid1, grid2 *mat.Dense, ok bool, err error) {
	for _, name := range []string{Grid1Name, Grid2Name} {
		if _, err := os.Stat(c.path(name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil, false, nil
			}
			return nil, nil, false, fmt.Errorf("failed to stat %s: %w", name, err)
		}
	}

	grid1, err = c.LoadMatrix(Grid1Name)
	if err != nil {
		return nil, nil, false, err
	}
	grid2, err = c.LoadMatrix(Grid2Name)
	if err != nil {
		return nil, nil, false, err
	}

	for i, g := range []*mat.Dense{grid1, grid2} {
		name := []string{Grid1Name, Grid2Name}[i]
		r, cols := g.Dims()
		if r != steps || cols != want.Dimension {
			return nil, nil, false, fmt.Errorf("%w: %s is %dx%d, run needs %dx%d", ErrCacheMismatch, name, r, cols, steps, want.Dimension)
		}
	}

	if err := c.checkManifest(want); err != nil {
		return nil, nil, false, err
	}
	return grid1, grid2, true, nil
}

func (c *GridCache) checkManifest(want Manifest) error {
	got, err := c.Manifest()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			monitoring.Logf("landscape: grid cache %s has no manifest, trusting grid shapes", c.Dir)
			return nil
		}
		return err
	}

	var mismatches []string
	if want.DirectionsHash != "" && got.DirectionsHash != want.DirectionsHash {
		mismatches = append(mismatches, "direction vectors")
	}
	if want.LayoutHash != "" && got.LayoutHash != want.LayoutHash {
		mismatches = append(mismatches, "parameter layout")
	}
	if len(mismatches) == 0 {
		return nil
	}
	if c.Strict {
		return fmt.Errorf("%w: %v differ from run %s", ErrCacheMismatch, mismatches, got.RunID)
	}
	monitoring.Logf("landscape: warning: cached grids from run %s were built with different %v", got.RunID, mismatches)
	return nil
}

// Manifest reads the cache manifest
func (c *GridCache) Manifest() (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(c.path(ManifestName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse grid cache manifest: %w", err)
	}
	return m, nil
}

// Store writes both grids, the directions and the manifest
func (c *GridCache) Store(grid1, grid2, directions *mat.Dense, m Manifest) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create grid cache directory: %w", err)
	}
	names := []string{Grid1Name, Grid2Name, DirectionsName}
	for i, g := range []*mat.Dense{grid1, grid2, directions} {
		name := names[i]
		if g == nil {
			continue
		}
		if err := c.StoreMatrix(name, g); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode grid cache manifest: %w", err)
	}
	return writeAtomic(c.path(ManifestName), data)
}

// StoreMatrix writes one named matrix
func (c *GridCache) StoreMatrix(name string, m *mat.Dense) error {
	r, cols := m.Dims()
	data := make([]float64, 0, r*cols)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	if err := writeAtomic(c.path(name), blob.NewMatrix(r, cols, data).Marshal()); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	return nil
}

// LoadMatrix reads one named matrix
func (c *GridCache) LoadMatrix(name string) (*mat.Dense, error) {
	raw, err := os.ReadFile(c.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	b, err := blob.UnmarshalBlob(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	dims := b.Dims()
	values := b.Values()
	if len(dims) != 2 || dims[0]*dims[1] != len(values) || len(values) == 0 {
		return nil, fmt.Errorf("%w: %s has shape %v and %d values", ErrCacheMismatch, name, dims, len(values))
	}
	return mat.NewDense(dims[0], dims[1], values), nil
}

// HashMatrix fingerprints a matrix's shape and exact values
func HashMatrix(m mat.Matrix) string {
	h := sha256.New()
	r, cols := m.Dims()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(r))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(cols))
	h.Write(buf[:])
	for i := 0; i < r; i++ {
		for j := 0; j < cols; j++ {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.At(i, j)))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
