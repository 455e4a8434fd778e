// Package estimation generates the synthetic 24h fuel consumption series and
// reduces it to dashboard metrics.
package estimation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"fluxmare/internal/domain"
)

// RandomSource yields floats in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// DefaultRandom returns the process-wide random source. It is safe for
// concurrent use.
func DefaultRandom() RandomSource { return globalRand{} }

// FixedRandom always returns the same value. Useful for reproducible runs.
type FixedRandom float64

func (f FixedRandom) Float64() float64 { return float64(f) }

const (
	recommendSlowdown = "Reduce speed to optimize fuel consumption"
	recommendHold     = "Speed stable, maintain current conditions"
)

// Estimator turns a FeatureInput into a DashboardResult.
type Estimator struct {
	coeffs Coefficients
	rand   RandomSource
	now    func() time.Time
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// New creates an Estimator. A nil RandomSource uses DefaultRandom.
func New(coeffs Coefficients, rnd RandomSource, opts ...Option) *Estimator {
	if rnd == nil {
		rnd = DefaultRandom()
	}
	e := &Estimator{coeffs: coeffs, rand: rnd, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Coefficients returns the constants in use.
func (e *Estimator) Coefficients() Coefficients { return e.coeffs }

// Factors are the input-dependent terms shared by every sample.
type Factors struct {
	Base  float64
	Depth float64
	Temp  float64
	Wind  float64
	Wave  float64
}

// FactorsFor computes the deterministic per-input terms.
func (e *Estimator) FactorsFor(in domain.FeatureInput) Factors {
	c := e.coeffs
	return Factors{
		Base:  c.Base + (in.SpeedOverGround/100)*c.SpeedWeight,
		Depth: (in.SeaFloorDepth / c.DepthScale) * c.DepthWeight,
		Temp:  (in.Temperature2M / c.TempScale) * c.TempWeight,
		Wind:  (in.WindSpeed10M / c.WindScale) * c.WindWeight,
		Wave:  (in.WaveHeight / c.WaveScale) * c.WaveWeight,
	}
}

// Series generates the sample series for in.
func (e *Estimator) Series(in domain.FeatureInput) []domain.FuelSample {
	c := e.coeffs
	f := e.FactorsFor(in)
	out := make([]domain.FuelSample, c.Samples)
	for i := range out {
		timeVariation := math.Sin(float64(i)/c.TimePeriod) * c.TimeAmplitude
		randomness := (e.rand.Float64() - 0.5) * c.Jitter
		consumption := f.Base + timeVariation + randomness + f.Depth + f.Temp + f.Wind + f.Wave
		out[i] = domain.FuelSample{
			Index:       i,
			Time:        ClockLabel(i, c.StepMinutes),
			Consumption: math.Max(c.Floor, consumption),
			Speed:       in.SpeedOverGround,
		}
	}
	return out
}

// ClockLabel formats the wall-clock time of sample i as HH:MM.
func ClockLabel(i, stepMinutes int) string {
	m := (i * stepMinutes) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Summarize reduces a series to average, max, min and total.
func Summarize(samples []domain.FuelSample) domain.Summary {
	if len(samples) == 0 {
		return domain.Summary{}
	}
	s := domain.Summary{Max: math.Inf(-1), Min: math.Inf(1)}
	for _, p := range samples {
		s.Total += p.Consumption
		s.Max = math.Max(s.Max, p.Consumption)
		s.Min = math.Min(s.Min, p.Consumption)
	}
	s.Average = s.Total / float64(len(samples))
	return s
}

// Analyze derives the display metrics from a summary and its input.
func (e *Estimator) Analyze(in domain.FeatureInput, s domain.Summary) domain.Analysis {
	c := e.coeffs
	totalKg := s.Total * c.SecondsPerStep
	tons := totalKg / 1000
	a := domain.Analysis{
		FuelConsumption:     totalKg,
		FuelConsumptionTons: tons,
		EstimatedCost:       tons * c.CostPerTon,
		Efficiency:          Efficiency(in, c),
		AvgConsumptionRate:  s.Average,
		Recommendation:      recommendHold,
	}
	if in.SpeedOverGround > c.SlowdownSpeed {
		a.Recommendation = recommendSlowdown
	}
	return a
}

// Efficiency scores sea conditions on a 0-100 scale.
func Efficiency(in domain.FeatureInput, c Coefficients) float64 {
	score := 100 - (in.WaveHeight*c.EfficiencyWave + in.WindSpeed10M*c.EfficiencyWind)
	return math.Max(0, math.Min(100, score))
}

// QueryLabel renders the free-text label of an estimation.
func QueryLabel(in domain.FeatureInput) string {
	return fmt.Sprintf("Speed %s m/s, Depth %s m, Temp %s°C",
		formatNumber(in.SpeedOverGround), formatNumber(in.SeaFloorDepth), formatNumber(in.Temperature2M))
}

// Estimate runs the generator and assembles the full dashboard.
func (e *Estimator) Estimate(in domain.FeatureInput) domain.DashboardResult {
	c := e.coeffs
	now := e.now().UTC()
	series := e.Series(in)
	summary := Summarize(series)
	return domain.DashboardResult{
		Query:    QueryLabel(in),
		Stats:    summary,
		Analysis: e.Analyze(in, summary),
		VesselInfo: domain.VesselInfo{
			Type:        c.VesselType,
			SpeedCalc:   in.SpeedOverGround,
			Distance:    in.SpeedOverGround * c.DistanceHours,
			Depth:       in.SeaFloorDepth,
			Temperature: in.Temperature2M,
			Datetime:    now.Format(time.RFC3339),
		},
		TimeSeries: series,
		Comparison: []domain.ComparisonRow{
			{Metric: "Speed", Current: in.SpeedOverGround, Optimal: c.OptimalSpeed},
			{Metric: "Wave Impact", Current: in.WaveHeight, Optimal: c.OptimalWaveImpact},
			{Metric: "Wind Impact", Current: in.WindSpeed10M, Optimal: c.OptimalWindImpact},
		},
		Timestamp: now,
	}
}
