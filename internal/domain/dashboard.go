package domain

import "time"

// FuelSample is one point of the synthetic 24h series.
type FuelSample struct {
	Index       int     `json:"index"`
	Time        string  `json:"time"`
	Consumption float64 `json:"consumption"`
	Speed       float64 `json:"speed"`
}

// Summary holds the reductions over a sample series.
type Summary struct {
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	Total   float64 `json:"total"`
}

// Analysis holds the derived display metrics. JSON names follow the stored
// conversation format.
type Analysis struct {
	FuelConsumption     float64 `json:"fuelConsumption"`
	FuelConsumptionTons float64 `json:"fuelConsumptionTons"`
	EstimatedCost       float64 `json:"estimatedCost"`
	Efficiency          float64 `json:"efficiency"`
	AvgConsumptionRate  float64 `json:"avgConsumptionRate"`
	Recommendation      string  `json:"recommendation"`
}

// VesselInfo echoes the input context of an estimation.
type VesselInfo struct {
	Type        string  `json:"type"`
	SpeedCalc   float64 `json:"speedCalc"`
	Distance    float64 `json:"distance"`
	Depth       float64 `json:"depth"`
	Temperature float64 `json:"temperature"`
	Datetime    string  `json:"datetime"`
}

// ComparisonRow pairs a current metric value with its optimum.
type ComparisonRow struct {
	Metric  string  `json:"metric"`
	Current float64 `json:"current"`
	Optimal float64 `json:"optimal"`
}

// DashboardResult is the full output of one estimation.
type DashboardResult struct {
	Query      string          `json:"query"`
	Stats      Summary         `json:"stats"`
	Analysis   Analysis        `json:"analysis"`
	VesselInfo VesselInfo      `json:"vesselInfo"`
	TimeSeries []FuelSample    `json:"timeSeriesData"`
	Comparison []ComparisonRow `json:"comparison"`
	Timestamp  time.Time       `json:"timestamp"`
}

// DashboardEntry is a dashboard located in conversation history.
type DashboardEntry struct {
	ID                string          `json:"id"`
	ConversationID    string          `json:"conversationId"`
	ConversationTitle string          `json:"conversationTitle"`
	Timestamp         time.Time       `json:"timestamp"`
	Dashboard         DashboardResult `json:"data"`
}

// ComparisonSnapshot is a condensed result pinned for side-by-side review.
type ComparisonSnapshot struct {
	Timestamp       string  `json:"timestamp"`
	Query           string  `json:"query"`
	FuelConsumption float64 `json:"fuelConsumption"`
	Efficiency      float64 `json:"efficiency"`
	Speed           float64 `json:"speed"`
}

// MaxComparisons bounds the comparison list.
const MaxComparisons = 3

// SnapshotOf condenses a dashboard into a comparison snapshot.
func SnapshotOf(d DashboardResult, now time.Time) ComparisonSnapshot {
	return ComparisonSnapshot{
		Timestamp:       now.UTC().Format(time.RFC3339Nano),
		Query:           d.Query,
		FuelConsumption: d.Analysis.FuelConsumption,
		Efficiency:      d.Analysis.Efficiency,
		Speed:           d.VesselInfo.SpeedCalc,
	}
}
