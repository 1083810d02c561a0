// Package reconcile implements the two-provider reconciliation sampler
// (spec §4.9).
package reconcile

import (
	"context"
	"math"
	"sort"
	"time"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/rngclock"
)

// Status classifies one sample's severity.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

const (
	defaultSampleSize = 50
	closeFailBP       = 10.0
	closeWarnBP       = 5.0
	volumeFail        = 1.5
	volumeWarn        = 1.2
)

// Sample is one (symbol, date) comparison between the two sources.
type Sample struct {
	Symbol       string
	Date         time.Time
	CloseA       *float64
	CloseB       *float64
	VolumeA      *float64
	VolumeB      *float64
	CloseBPDiff  *float64
	VolumeRatio  *float64
	Status       Status
}

// Run is the aggregate outcome of one reconciliation invocation.
type Run struct {
	RunID         string
	Market        string
	Start         time.Time
	End           time.Time
	SampledSymbols []string
	Samples       []Sample
	PassCount     int
	WarnCount     int
	FailCount     int
	P95CloseBPDiff float64
	CreatedAt     time.Time
}

// SeriesLoader yields one provider's price series for a symbol within a
// date window, keyed by date.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, symbol, market string, start, end time.Time) ([]model.DataPoint, error)
}

// RunWriter persists one row per reconciliation run.
type RunWriter interface {
	WriteRun(ctx context.Context, run Run) error
}

// DiffWriter persists one row per (run, symbol, date) sample.
type DiffWriter interface {
	WriteDiffs(ctx context.Context, runID string, samples []Sample) error
}

// Sampler runs two-provider reconciliation checks (spec §4.9).
type Sampler struct {
	sourceA    SeriesLoader
	sourceB    SeriesLoader
	sampler    rngclock.Sampler
	clock      rngclock.Clock
	ids        rngclock.IDFactory
	sampleSize int
	runWriter  RunWriter
	diffWriter DiffWriter
}

// Option configures a Sampler.
type Option func(*Sampler)

func WithSampleSize(n int) Option { return func(s *Sampler) { s.sampleSize = n } }
func WithRandomSampler(r rngclock.Sampler) Option { return func(s *Sampler) { s.sampler = r } }
func WithClock(c rngclock.Clock) Option { return func(s *Sampler) { s.clock = c } }
func WithIDFactory(f rngclock.IDFactory) Option { return func(s *Sampler) { s.ids = f } }
func WithRunWriter(w RunWriter) Option { return func(s *Sampler) { s.runWriter = w } }
func WithDiffWriter(w DiffWriter) Option { return func(s *Sampler) { s.diffWriter = w } }

// New constructs a Sampler from its two series loaders.
func New(a, b SeriesLoader, opts ...Option) *Sampler {
	s := &Sampler{
		sourceA:    a,
		sourceB:    b,
		clock:      rngclock.RealClock{},
		sampleSize: defaultSampleSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func dedupePreserveOrder(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func indexByDate(points []model.DataPoint) map[string]model.DataPoint {
	idx := make(map[string]model.DataPoint, len(points))
	for _, p := range points {
		idx[p.Timestamp.UTC().Format("2006-01-02")] = p
	}
	return idx
}

// Run executes the full §4.9 algorithm.
func (s *Sampler) Run(ctx context.Context, symbols []string, market string, start, end time.Time) (Run, error) {
	if len(symbols) == 0 {
		return Run{}, vperrors.New(vperrors.CodeValidation, "reconcile", "symbols must be non-empty", false, nil)
	}
	if start.After(end) {
		return Run{}, vperrors.New(vperrors.CodeValidation, "reconcile", "start must be <= end", false, nil)
	}
	sampleSize := s.sampleSize
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}

	unique := dedupePreserveOrder(symbols)
	selected := unique
	if len(unique) > sampleSize {
		sampler := s.sampler
		if sampler == nil {
			return Run{}, vperrors.New(vperrors.CodeValidation, "reconcile", "random sampler required when unique symbols exceed sample size", false, nil)
		}
		idxs := sampler.Sample(len(unique), sampleSize)
		selected = make([]string, len(idxs))
		for i, idx := range idxs {
			selected[i] = unique[idx]
		}
	}

	var samples []Sample
	for _, symbol := range selected {
		seriesA, err := s.sourceA.LoadSeries(ctx, symbol, market, start, end)
		if err != nil {
			return Run{}, err
		}
		seriesB, err := s.sourceB.LoadSeries(ctx, symbol, market, start, end)
		if err != nil {
			return Run{}, err
		}
		samples = append(samples, reconcileSymbol(symbol, seriesA, seriesB)...)
	}

	run := Run{
		Market:         market,
		Start:          start,
		End:            end,
		SampledSymbols: selected,
		Samples:        samples,
	}
	for _, sample := range samples {
		switch sample.Status {
		case StatusPass:
			run.PassCount++
		case StatusWarn:
			run.WarnCount++
		case StatusFail:
			run.FailCount++
		}
	}
	run.P95CloseBPDiff = p95AbsCloseBPDiff(samples)

	if s.ids != nil {
		run.RunID = s.ids.NewID()
	}
	run.CreatedAt = s.clock.Now()

	if s.runWriter != nil {
		if err := s.runWriter.WriteRun(ctx, run); err != nil {
			return run, err
		}
	}
	if s.diffWriter != nil && len(samples) > 0 {
		if err := s.diffWriter.WriteDiffs(ctx, run.RunID, samples); err != nil {
			return run, err
		}
	}
	return run, nil
}

func reconcileSymbol(symbol string, seriesA, seriesB []model.DataPoint) []Sample {
	idxA := indexByDate(seriesA)
	idxB := indexByDate(seriesB)

	dateSet := make(map[string]time.Time)
	for _, p := range seriesA {
		dateSet[p.Timestamp.UTC().Format("2006-01-02")] = p.Timestamp
	}
	for _, p := range seriesB {
		dateSet[p.Timestamp.UTC().Format("2006-01-02")] = p.Timestamp
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	samples := make([]Sample, 0, len(dates))
	for _, d := range dates {
		pa, okA := idxA[d]
		pb, okB := idxB[d]
		sample := Sample{Symbol: symbol, Date: dateSet[d]}

		if !okA || !okB {
			sample.Status = StatusFail
			samples = append(samples, sample)
			continue
		}

		closeStatus := classifyClose(pa, pb, &sample)
		volumeStatus := classifyVolume(pa, pb, &sample)
		sample.Status = worstOf(closeStatus, volumeStatus)
		samples = append(samples, sample)
	}
	return samples
}

func classifyClose(a, b model.DataPoint, sample *Sample) Status {
	if a.Close == nil || b.Close == nil {
		return StatusFail
	}
	closeA, _ := a.Close.Float64()
	closeB, _ := b.Close.Float64()
	sample.CloseA = &closeA
	sample.CloseB = &closeB
	if closeB == 0 {
		return StatusFail
	}
	bpDiff := (closeA - closeB) / closeB * 10000
	sample.CloseBPDiff = &bpDiff
	abs := math.Abs(bpDiff)
	switch {
	case abs >= closeFailBP:
		return StatusFail
	case abs >= closeWarnBP:
		return StatusWarn
	default:
		return StatusPass
	}
}

func classifyVolume(a, b model.DataPoint, sample *Sample) Status {
	if a.Volume == nil || b.Volume == nil {
		return StatusFail
	}
	volA, _ := a.Volume.Float64()
	volB, _ := b.Volume.Float64()
	sample.VolumeA = &volA
	sample.VolumeB = &volB
	if volB <= 0 {
		return StatusFail
	}
	ratio := volA / volB
	sample.VolumeRatio = &ratio
	if ratio <= 0 {
		return StatusFail
	}
	deviation := math.Max(ratio, 1/ratio)
	switch {
	case deviation >= volumeFail:
		return StatusFail
	case deviation >= volumeWarn:
		return StatusWarn
	default:
		return StatusPass
	}
}

func worstOf(a, b Status) Status {
	rank := map[Status]int{StatusPass: 0, StatusWarn: 1, StatusFail: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// p95AbsCloseBPDiff computes the 95th percentile of |close_bp_diff| via
// linear interpolation (rank = 0.95*(n-1)); 0 if no defined values.
func p95AbsCloseBPDiff(samples []Sample) float64 {
	var values []float64
	for _, s := range samples {
		if s.CloseBPDiff != nil {
			values = append(values, math.Abs(*s.CloseBPDiff))
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	if len(values) == 1 {
		return values[0]
	}
	rank := 0.95 * float64(len(values)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return values[lower]
	}
	frac := rank - float64(lower)
	return values[lower] + frac*(values[upper]-values[lower])
}
