package trend

import "math"

// ErrNotEnoughPoints is the error tag carried by a Result computed over a
// series that is too short to compare.
const ErrNotEnoughPoints = "not_enough_points"

const (
	minSignalPoints   = 2
	minBaselinePoints = 2
	minStddevSamples  = 2
)

// Bucket labels one point of a computed signal.
type Bucket struct {
	Label string  `json:"label"`
	Count float64 `json:"count"`
}

// LastVsPrev compares the two most recent complete buckets. Pct is nil when
// the previous bucket is zero; absence of a ratio is meaningful, not an
// error.
type LastVsPrev struct {
	Abs float64  `json:"abs"`
	Pct *float64 `json:"pct"`
}

// LastVsBaseline compares the latest bucket against the trailing baseline
// window. Ratio and Z are nil when the baseline mean is below the configured
// floor or when a denominator is zero; nil degrades, nothing throws.
type LastVsBaseline struct {
	BaselineWindow  int      `json:"baseline_window"`
	BaselineMean    *float64 `json:"baseline_mean"`
	BaselineSD      *float64 `json:"baseline_sd"`
	Ratio           *float64 `json:"ratio"`
	Z               *float64 `json:"z"`
	MinBaselineMean float64  `json:"min_baseline_mean"`
}

// Signals groups the two comparison views.
type Signals struct {
	LastVsPrev     LastVsPrev     `json:"last_vs_prev"`
	LastVsBaseline LastVsBaseline `json:"last_vs_baseline"`
}

// Result is the outcome of one signal computation. When Err is set only
// NumPoints carries information; callers treat the error variant as "exclude
// from ranking", never as fatal.
type Result struct {
	Err        string   `json:"error,omitempty"`
	NumPoints  int      `json:"num_points"`
	LastBucket *Bucket  `json:"last_bucket,omitempty"`
	PrevBucket *Bucket  `json:"prev_bucket,omitempty"`
	Signals    *Signals `json:"signals,omitempty"`
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation (n-1 denominator), 0 for fewer
// than two samples.
func stddev(values []float64) float64 {
	if len(values) < minStddevSamples {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func ptr(v float64) *float64 { return &v }

// ComputeSignals derives spike signals over a chronologically ordered series
// of complete periods. baselineWindow is the number of points preceding the
// second-to-last point used as the baseline; minBaselineMean suppresses
// ratio/z on near-zero-volume series where any small absolute change looks
// like a huge spike. Pure and total: every numeric edge case degrades to a
// nil field, never NaN or Inf.
func ComputeSignals(points []Point, baselineWindow int, minBaselineMean float64) Result {
	if len(points) < minSignalPoints {
		return Result{Err: ErrNotEnoughPoints, NumPoints: len(points)}
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Count
	}
	last := points[len(points)-1]
	prev := points[len(points)-2]

	var pct *float64
	if prev.Count > 0 {
		pct = ptr(last.Count/prev.Count - 1)
	}

	// Baseline: up to baselineWindow points immediately preceding prev.
	// A series of exactly two points has no baseline window at all.
	var baseline []float64
	if len(values) > minBaselinePoints {
		start := len(values) - (baselineWindow + 1)
		if start < 0 {
			start = 0
		}
		baseline = values[start : len(values)-1]
	}

	var baselineMean, baselineSD, ratio, z *float64
	if len(baseline) > 0 {
		baselineMean = ptr(mean(baseline))
		baselineSD = ptr(stddev(baseline))
	}
	if baselineMean != nil && *baselineMean >= minBaselineMean && baselineSD != nil {
		if *baselineMean > 0 {
			ratio = ptr(last.Count / *baselineMean)
		}
		if *baselineSD > 0 {
			z = ptr((last.Count - *baselineMean) / *baselineSD)
		}
	}

	return Result{
		NumPoints:  len(points),
		LastBucket: &Bucket{Label: last.Label, Count: last.Count},
		PrevBucket: &Bucket{Label: prev.Label, Count: prev.Count},
		Signals: &Signals{
			LastVsPrev: LastVsPrev{Abs: last.Count - prev.Count, Pct: pct},
			LastVsBaseline: LastVsBaseline{
				BaselineWindow:  baselineWindow,
				BaselineMean:    baselineMean,
				BaselineSD:      baselineSD,
				Ratio:           ratio,
				Z:               z,
				MinBaselineMean: minBaselineMean,
			},
		},
	}
}

// Z returns the baseline z-score, or nil for error results and suppressed
// signals. Ranking sorts descending by this with nil last.
func (r Result) Z() *float64 {
	if r.Err != "" || r.Signals == nil {
		return nil
	}
	return r.Signals.LastVsBaseline.Z
}
