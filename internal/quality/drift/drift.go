// Package drift implements the rolling mean/stddev/z-score drift detector
// (spec §4.8).
package drift

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"gonum.org/v1/gonum/stat"
)

// Status classifies one metric's departure from baseline.
type Status string

const (
	StatusOK   Status = "OK"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

const (
	defaultFailThreshold = 3.0
	defaultWarnThreshold = 2.0
)

// Metric is one emitted row of the drift result (spec §3 "Drift metric").
type Metric struct {
	Name   string
	Value  float64
	Status Status
}

// Result is the full output of one drift computation.
type Result struct {
	Symbol          string
	Market          string
	Window          int
	Metrics         []Metric
	LatestTimestamp time.Time
	RunID           string
}

// PriceLoader yields the window of prices a drift check runs over.
type PriceLoader interface {
	LoadPrices(ctx context.Context, symbol, market string) ([]model.DataPoint, error)
}

// Row is one persisted metric row (spec §4.8 step 7).
type Row struct {
	Date      time.Time
	Market    string
	Symbol    string
	Metric    string
	Value     float64
	Status    Status
	Window    int
	RunID     string
	CreatedAt time.Time
}

// Writer persists drift rows.
type Writer interface {
	WriteDrift(ctx context.Context, rows []Row) error
}

// Detector computes drift metrics for one (symbol, market, window).
type Detector struct {
	prices        PriceLoader
	writer        Writer
	clock         func() time.Time
	failThreshold float64
	warnThreshold float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithWriter attaches the optional persistence collaborator.
func WithWriter(w Writer) Option { return func(d *Detector) { d.writer = w } }

// WithClock overrides the time source used for run timestamps (tests only).
func WithClock(now func() time.Time) Option { return func(d *Detector) { d.clock = now } }

// WithThresholds overrides the default fail/warn z-score thresholds.
func WithThresholds(warn, fail float64) Option {
	return func(d *Detector) { d.warnThreshold = warn; d.failThreshold = fail }
}

// New constructs a Detector from its price-loader collaborator.
func New(prices PriceLoader, opts ...Option) *Detector {
	d := &Detector{
		prices:        prices,
		clock:         time.Now,
		failThreshold: defaultFailThreshold,
		warnThreshold: defaultWarnThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func classify(z, warn, fail float64) Status {
	abs := math.Abs(z)
	switch {
	case abs >= fail:
		return StatusFail
	case abs >= warn:
		return StatusWarn
	default:
		return StatusOK
	}
}

// Compute runs the full §4.8 algorithm for one (symbol, market, window).
func (d *Detector) Compute(ctx context.Context, symbol, market string, window int) (Result, error) {
	if window < 2 {
		return Result{}, vperrors.New(vperrors.CodeValidation, "drift", "window must be >= 2", false, map[string]any{"window": window})
	}

	points, err := d.prices.LoadPrices(ctx, symbol, market)
	if err != nil {
		return Result{}, err
	}
	if len(points) < window+1 {
		return Result{}, vperrors.New(vperrors.CodeDataQuality, "drift", "insufficient points for drift window", false, map[string]any{
			"window": window, "received": len(points),
		})
	}

	sorted := append([]model.DataPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	trailing := sorted[len(sorted)-(window+1):]
	baseline := trailing[:window]
	latest := trailing[window]

	closeValues := make([]float64, window)
	volumeValues := make([]float64, window)
	for i, p := range baseline {
		if p.Close == nil || p.Volume == nil {
			return Result{}, vperrors.New(vperrors.CodeDataQuality, "drift", "baseline point missing close or volume", false, map[string]any{
				"index": i,
			})
		}
		closeValues[i], _ = p.Close.Float64()
		volumeValues[i], _ = p.Volume.Float64()
	}
	if latest.Close == nil || latest.Volume == nil {
		return Result{}, vperrors.New(vperrors.CodeDataQuality, "drift", "latest point missing close or volume", false, nil)
	}
	latestClose, _ := latest.Close.Float64()
	latestVolume, _ := latest.Volume.Float64()

	closeMean, closeStd := stat.MeanStdDev(closeValues, nil)
	volumeMean, volumeStd := stat.MeanStdDev(volumeValues, nil)

	zClose := 0.0
	if closeStd != 0 {
		zClose = (latestClose - closeMean) / closeStd
	}
	zVolume := 0.0
	if volumeStd != 0 {
		zVolume = (latestVolume - volumeMean) / volumeStd
	}

	metrics := []Metric{
		{Name: "close_mean", Value: closeMean, Status: StatusOK},
		{Name: "close_std", Value: closeStd, Status: StatusOK},
		{Name: "volume_mean", Value: volumeMean, Status: StatusOK},
		{Name: "volume_std", Value: volumeStd, Status: StatusOK},
		{Name: "zscore_latest_close", Value: zClose, Status: classify(zClose, d.warnThreshold, d.failThreshold)},
		{Name: "zscore_latest_volume", Value: zVolume, Status: classify(zVolume, d.warnThreshold, d.failThreshold)},
	}

	result := Result{
		Symbol:          symbol,
		Market:          market,
		Window:          window,
		Metrics:         metrics,
		LatestTimestamp: latest.Timestamp,
		RunID:           uuid.New().String(),
	}

	if d.writer != nil {
		if err := d.persist(ctx, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (d *Detector) persist(ctx context.Context, result Result) error {
	createdAt := d.clock()
	rows := make([]Row, len(result.Metrics))
	for i, m := range result.Metrics {
		rows[i] = Row{
			Date:      result.LatestTimestamp.UTC().Truncate(24 * time.Hour),
			Market:    result.Market,
			Symbol:    result.Symbol,
			Metric:    m.Name,
			Value:     m.Value,
			Status:    m.Status,
			Window:    result.Window,
			RunID:     result.RunID,
			CreatedAt: createdAt,
		}
	}
	return d.writer.WriteDrift(ctx, rows)
}
