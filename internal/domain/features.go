package domain

// FeatureField identifies one of the seven submitted readings.
type FeatureField string

const (
	FieldSpeedOverGround      FeatureField = "speedOverGround"
	FieldWindSpeed10M         FeatureField = "windSpeed10M"
	FieldWaveHeight           FeatureField = "waveHeight"
	FieldWavePeriod           FeatureField = "wavePeriod"
	FieldSeaFloorDepth        FeatureField = "seaFloorDepth"
	FieldTemperature2M        FeatureField = "temperature2M"
	FieldOceanCurrentVelocity FeatureField = "oceanCurrentVelocity"
)

// FieldRange is the closed interval a reading must fall in.
type FieldRange struct {
	Field FeatureField
	Min   float64
	Max   float64
}

// Contains reports whether v lies within the range, bounds included.
func (r FieldRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// FeatureRanges lists the valid ranges in the order they are checked.
var FeatureRanges = []FieldRange{
	{Field: FieldSpeedOverGround, Min: 0, Max: 30},
	{Field: FieldWindSpeed10M, Min: 0, Max: 50},
	{Field: FieldWaveHeight, Min: 0.01, Max: 20},
	{Field: FieldWavePeriod, Min: 0, Max: 30},
	{Field: FieldSeaFloorDepth, Min: 0, Max: 11000},
	{Field: FieldTemperature2M, Min: -20, Max: 50},
	{Field: FieldOceanCurrentVelocity, Min: 0, Max: 5},
}

// FeatureInput is one validated observation.
type FeatureInput struct {
	SpeedOverGround      float64 `json:"speedOverGround"`
	WindSpeed10M         float64 `json:"windSpeed10M"`
	WaveHeight           float64 `json:"waveHeight"`
	WavePeriod           float64 `json:"wavePeriod"`
	SeaFloorDepth        float64 `json:"seaFloorDepth"`
	Temperature2M        float64 `json:"temperature2M"`
	OceanCurrentVelocity float64 `json:"oceanCurrentVelocity"`
}

// Value returns the reading for field f.
func (in FeatureInput) Value(f FeatureField) float64 {
	switch f {
	case FieldSpeedOverGround:
		return in.SpeedOverGround
	case FieldWindSpeed10M:
		return in.WindSpeed10M
	case FieldWaveHeight:
		return in.WaveHeight
	case FieldWavePeriod:
		return in.WavePeriod
	case FieldSeaFloorDepth:
		return in.SeaFloorDepth
	case FieldTemperature2M:
		return in.Temperature2M
	case FieldOceanCurrentVelocity:
		return in.OceanCurrentVelocity
	}
	return 0
}

// Set stores v into field f. Unknown fields are ignored.
func (in *FeatureInput) Set(f FeatureField, v float64) {
	switch f {
	case FieldSpeedOverGround:
		in.SpeedOverGround = v
	case FieldWindSpeed10M:
		in.WindSpeed10M = v
	case FieldWaveHeight:
		in.WaveHeight = v
	case FieldWavePeriod:
		in.WavePeriod = v
	case FieldSeaFloorDepth:
		in.SeaFloorDepth = v
	case FieldTemperature2M:
		in.Temperature2M = v
	case FieldOceanCurrentVelocity:
		in.OceanCurrentVelocity = v
	}
}

// RawFeatures is the form submission before parsing. Field names and JSON
// tags match the saved-input history format.
type RawFeatures struct {
	SpeedOverGround      string `json:"speedOverGround"`
	WindSpeed10M         string `json:"windSpeed10M"`
	WaveHeight           string `json:"waveHeight"`
	WavePeriod           string `json:"wavePeriod"`
	SeaFloorDepth        string `json:"seaFloorDepth"`
	Temperature2M        string `json:"temperature2M"`
	OceanCurrentVelocity string `json:"oceanCurrentVelocity"`
}

// Get returns the raw string for field f.
func (r RawFeatures) Get(f FeatureField) string {
	switch f {
	case FieldSpeedOverGround:
		return r.SpeedOverGround
	case FieldWindSpeed10M:
		return r.WindSpeed10M
	case FieldWaveHeight:
		return r.WaveHeight
	case FieldWavePeriod:
		return r.WavePeriod
	case FieldSeaFloorDepth:
		return r.SeaFloorDepth
	case FieldTemperature2M:
		return r.Temperature2M
	case FieldOceanCurrentVelocity:
		return r.OceanCurrentVelocity
	}
	return ""
}

// SavedInput is one archived form submission.
type SavedInput struct {
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"`
	Label     string      `json:"label"`
	Data      RawFeatures `json:"data"`
}

// MaxSavedInputs bounds the saved-input history.
const MaxSavedInputs = 10
