package landscape

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-landscape/monitoring"
)

// State is the evaluator's position in a run
type State int32

const (
	StateInit State = iota
	StateLoadOrComputeGrids
	StateScan
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateLoadOrComputeGrids:
		return "LOAD_OR_COMPUTE_GRIDS"
	case StateScan:
		return "SCAN"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// DirectionCount is how many directions a run samples
const DirectionCount = 2

// Evaluator computes a loss landscape. Fill in the fields and call Run.
type Evaluator struct {
	Model   Model
	Dataset Dataset
	// Mean is subtracted from every dataset image; nil skips it.
	Mean []float64

	Steps     int
	SampleCap int
	// Workers > 1 evaluates cells in parallel on clones of Model, which
	// must then implement Cloner.
	Workers int

	// Directions are the scaled direction vectors, one per row. When nil
	// they are sampled from Rand and scaled to the network norm.
	Directions *mat.Dense
	Rand       *rand.Rand

	// References are selected from Dataset when nil.
	References *References

	// Cache, when set, replays grids from an earlier run and stores new ones.
	Cache *GridCache

	// OnCell is called once per finished cell, never concurrently.
	OnCell func(Cell)

	state atomic.Int32
	mu    sync.Mutex
}

// State reports the current stage of Run
func (e *Evaluator) State() State {
	return State(e.state.Load())
}

func (e *Evaluator) setState(s State) {
	e.state.Store(int32(s))
}

// Run evaluates every cell of the grid. The model is restored to its
// captured parameters before Run returns.
func (e *Evaluator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	e.setState(StateInit)

	if e.Steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be positive, got %d", ErrDegenerateInput, e.Steps)
	}
	if e.Model == nil || e.Dataset == nil {
		return nil, fmt.Errorf("%w: evaluator needs a model and a dataset", ErrDegenerateInput)
	}

	snap, err := Capture(e.Model)
	if err != nil {
		return nil, err
	}
	paramCount, norm := snap.Norm()
	if paramCount == 0 {
		return nil, fmt.Errorf("%w: model has no perturbable parameters", ErrDegenerateInput)
	}
	monitoring.Logf("landscape: %d perturbable parameters, network norm %.6f", paramCount, norm)

	dirs, err := e.directions(paramCount, norm)
	if err != nil {
		return nil, err
	}

	refs, err := e.references(ctx)
	if err != nil {
		return nil, err
	}
	defaultLoss, _, err := EvaluateSample(e.Model, refs.Best.Image, refs.Best.Label)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate best sample: %w", err)
	}
	monitoring.Logf("landscape: default loss %.6f", defaultLoss)

	e.setState(StateLoadOrComputeGrids)
	grid1, grid2, cached, dirs, err := e.grids(runID, snap.Layout(), dirs)
	if err != nil {
		return nil, err
	}

	e.setState(StateScan)
	res := newResult(e.Steps)
	if e.Workers > 1 {
		err = e.scanParallel(ctx, snap, refs, grid1, grid2, res)
	} else {
		err = e.scanSerial(ctx, snap, refs, grid1, grid2, res)
	}
	if err != nil {
		return nil, err
	}

	res.RunID = runID
	res.ParamCount = paramCount
	res.NetworkNorm = norm
	res.DefaultLoss = defaultLoss
	res.References = refs
	res.Directions = dirs
	res.GridsCached = cached
	res.Started = started
	res.Elapsed = time.Since(started)

	e.setState(StateDone)
	monitoring.Logf("landscape: %d cells evaluated in %s", e.Steps*e.Steps, res.Elapsed)
	return res, nil
}

func (e *Evaluator) directions(paramCount int, norm float64) (*mat.Dense, error) {
	dirs := e.Directions
	if dirs == nil {
		if e.Rand == nil {
			return nil, fmt.Errorf("%w: no directions and no random source", ErrDegenerateInput)
		}
		var err error
		dirs, err = SampleDirections(e.Rand, paramCount, DirectionCount)
		if err != nil {
			return nil, err
		}
		NormalizeAndScale(dirs, norm)
	}

	rows, cols := dirs.Dims()
	if rows < DirectionCount || cols != paramCount {
		return nil, fmt.Errorf("%w: directions are %dx%d, need %dx%d", ErrDimensionMismatch, rows, cols, DirectionCount, paramCount)
	}
	return dirs, nil
}

func (e *Evaluator) references(ctx context.Context) (*References, error) {
	if e.References != nil {
		return e.References, nil
	}
	cursor, err := e.Dataset.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer cursor.Close()

	refs, err := SelectReferences(ctx, e.Model, cursor, e.Mean, e.SampleCap)
	if err != nil {
		return nil, fmt.Errorf("failed to select reference samples: %w", err)
	}
	monitoring.Logf("landscape: %d out of %d were classified correctly", refs.Correct, refs.Count)
	return refs, nil
}

// grids loads the cached grids or builds and stores new ones. When grids
// are replayed the cached directions are returned in place of dirs.
func (e *Evaluator) grids(runID string, layout *Layout, dirs *mat.Dense) (*mat.Dense, *mat.Dense, bool, *mat.Dense, error) {
	start := time.Now()
	want := Manifest{
		RunID:          runID,
		Dimension:      layout.Size(),
		Steps:          e.Steps,
		LayoutHash:     layout.Hash(),
		DirectionsHash: HashMatrix(dirs),
		CreatedAt:      start,
	}

	if e.Cache != nil {
		grid1, grid2, ok, err := e.Cache.Load(e.Steps, want)
		if err != nil {
			return nil, nil, false, nil, err
		}
		if ok {
			if cachedDirs, err := e.Cache.LoadMatrix(DirectionsName); err == nil {
				if _, cols := cachedDirs.Dims(); cols == layout.Size() {
					dirs = cachedDirs
				}
			}
			monitoring.Logf("landscape: loaded grids from %s in %s", e.Cache.Dir, time.Since(start))
			return grid1, grid2, true, dirs, nil
		}
	}

	progress := func(done, total int) {
		monitoring.Logf("landscape: grid columns completed %d/%d", done, total)
	}
	grid1, err := DirectionGrid(dirs.RawRowView(0), e.Steps, progress)
	if err != nil {
		return nil, nil, false, nil, err
	}
	grid2, err := DirectionGrid(dirs.RawRowView(1), e.Steps, progress)
	if err != nil {
		return nil, nil, false, nil, err
	}

	if e.Cache != nil {
		if err := e.Cache.Store(grid1, grid2, dirs, want); err != nil {
			return nil, nil, false, nil, fmt.Errorf("failed to store grids: %w", err)
		}
	}
	monitoring.Logf("landscape: built grids in %s", time.Since(start))
	return grid1, grid2, false, dirs, nil
}

func (e *Evaluator) scanSerial(ctx context.Context, snap *Snapshot, refs *References, grid1, grid2 *mat.Dense, res *Result) (err error) {
	defer func() {
		if rerr := snap.Restore(e.Model); rerr != nil && err == nil {
			err = rerr
		}
	}()

	agg := &Aggregator{SampleCap: e.SampleCap}
	for x := 0; x < e.Steps; x++ {
		for y := 0; y < e.Steps; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			cell, err := e.evaluateCell(ctx, e.Model, snap, agg, refs, grid1.RawRowView(x), grid2.RawRowView(y))
			if err != nil {
				return fmt.Errorf("cell (%d, %d): %w", x, y, err)
			}
			cell.X, cell.Y = x, y
			res.set(cell)
			e.report(cell)
		}
	}
	return nil
}

func (e *Evaluator) scanParallel(ctx context.Context, snap *Snapshot, refs *References, grid1, grid2 *mat.Dense, res *Result) error {
	cloner, ok := e.Model.(Cloner)
	if !ok {
		return fmt.Errorf("parallel evaluation needs a model that implements Cloner")
	}

	workers := min(e.Workers, e.Steps*e.Steps)
	models := make(chan Model, workers)
	for i := 0; i < workers; i++ {
		m, err := cloner.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone model: %w", err)
		}
		models <- m
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	agg := &Aggregator{SampleCap: e.SampleCap}

scan:
	for x := 0; x < e.Steps; x++ {
		for y := 0; y < e.Steps; y++ {
			if gctx.Err() != nil {
				break scan
			}
			g.Go(func() error {
				m := <-models
				defer func() { models <- m }()

				cell, err := e.evaluateCell(gctx, m, snap, agg, refs, grid1.RawRowView(x), grid2.RawRowView(y))
				if err != nil {
					return fmt.Errorf("cell (%d, %d): %w", x, y, err)
				}
				cell.X, cell.Y = x, y
				res.set(cell)
				e.report(cell)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// evaluateCell applies baseline + a + b to model and measures the dataset
// and both reference samples.
func (e *Evaluator) evaluateCell(ctx context.Context, model Model, snap *Snapshot, agg *Aggregator, refs *References, a, b []float64) (Cell, error) {
	if err := snap.Apply(model, a, b); err != nil {
		return Cell{}, err
	}

	cursor, err := e.Dataset.Open(ctx)
	if err != nil {
		return Cell{}, fmt.Errorf("failed to open dataset: %w", err)
	}
	summary, err := agg.Evaluate(ctx, model, cursor, e.Mean)
	cursor.Close()
	if err != nil {
		return Cell{}, err
	}

	cell := Cell{
		Loss:     LossFromProbability(summary.MeanProbability),
		Accuracy: summary.Accuracy,
	}
	if cell.BestLoss, cell.BestCorrect, err = EvaluateSample(model, refs.Best.Image, refs.Best.Label); err != nil {
		return Cell{}, fmt.Errorf("best sample: %w", err)
	}
	if cell.WorstLoss, cell.WorstCorrect, err = EvaluateSample(model, refs.Worst.Image, refs.Worst.Label); err != nil {
		return Cell{}, fmt.Errorf("worst sample: %w", err)
	}
	return cell, nil
}

func (e *Evaluator) report(c Cell) {
	if e.OnCell == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OnCell(c)
}
