package lbpcascade

import (
	"context"
	"runtime"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"go.uber.org/atomic"
)

// Detector runs the multi-scale scan with the window rows of every scale
// spread over a pool of goroutines. Its output is identical to
// Cascade.DetectMultiScale called with the same parameters.
type Detector struct {
	Cascade     *Cascade
	ScaleFactor float64
	StepSize    int
	// Workers is the number of goroutines scanning rows. Zero selects runtime.NumCPU.
	Workers int

	windows atomic.Int64
}

// NewDetector returns a detector using the default scan parameters.
func NewDetector(c *Cascade) *Detector {
	return &Detector{
		Cascade:     c,
		ScaleFactor: 1.3,
		StepSize:    2,
	}
}

// Windows returns the number of windows evaluated by the most recent Detect call.
func (d *Detector) Windows() int64 {
	return d.windows.Load()
}

func (d *Detector) workers() (int, error) {
	switch {
	case d.Workers < 0:
		return 0, &InvalidArgumentError{Name: "workers", Value: d.Workers, Reason: "must not be negative"}
	case d.Workers == 0:
		return runtime.NumCPU(), nil
	}
	return d.Workers, nil
}

// Detect returns every window of ii accepted by the cascade, ordered by
// increasing scale, then by row and column.
func (d *Detector) Detect(ctx context.Context, ii *IntegralImage) ([]Detection, error) {
	if d.Cascade == nil {
		return nil, &InvalidArgumentError{Name: "cascade", Value: nil, Reason: "no cascade loaded"}
	}
	if err := validateScaleFactor(d.ScaleFactor); err != nil {
		return nil, err
	}
	if d.StepSize < 1 {
		return nil, &InvalidArgumentError{Name: "step", Value: d.StepSize, Reason: "must be at least 1"}
	}
	if err := d.Cascade.Validate(); err != nil {
		return nil, err
	}
	workers, err := d.workers()
	if err != nil {
		return nil, err
	}
	d.windows.Store(0)

	logger.Debugf(ctx, "max scale: %d, workers: %d", d.Cascade.MaxScale(ii.Rows, ii.Cols), workers)

	var dets []Detection
	for _, scale := range d.Cascade.Scales(ii.Rows, ii.Cols, d.ScaleFactor) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := d.detectScale(ctx, ii, scale, workers)
		if err != nil {
			return nil, err
		}
		dets = append(dets, found...)
	}
	return dets, nil
}

// detectScale scans a single scale. Every row writes into its own slot so the
// results can be joined in row order once all the workers are done.
func (d *Detector) detectScale(ctx context.Context, ii *IntegralImage, scale float64, workers int) ([]Detection, error) {
	var (
		step           = d.StepSize
		maxRow, maxCol = d.Cascade.scanBounds(ii, scale)
	)
	if maxRow <= 0 || maxCol <= 0 {
		return nil, nil
	}
	nrows := (maxRow + step - 1) / step
	perRow := int64((maxCol + step - 1) / step)

	wh, ww := d.Cascade.windowSize(scale)
	logger.Debugf(ctx, "evaluating at scale %.4f (%dx%d), %d rows", scale, wh, ww, nrows)

	if workers > nrows {
		workers = nrows
	}

	var (
		wg    sync.WaitGroup
		slots = make([][]Detection, nrows)
		rows  = make(chan int)
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for k := range rows {
				slots[k] = d.Cascade.scanRow(ii, k*step, maxCol, step, scale, nil)
				d.windows.Add(perRow)
			}
		}()
	}

	var err error
	for k := 0; k < nrows; k++ {
		if err = ctx.Err(); err != nil {
			break
		}
		rows <- k
	}
	close(rows)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	var n int
	for _, s := range slots {
		n += len(s)
	}
	dets := make([]Detection, 0, n)
	for _, s := range slots {
		dets = append(dets, s...)
	}
	return dets, nil
}
