package estimation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Coefficients holds every placeholder constant of the synthetic model.
// None of them has a physical derivation; they are kept configurable so the
// generator can be tuned without code changes.
type Coefficients struct {
	// Per-sample consumption terms, kg/s.
	Base          float64 `yaml:"base"`
	SpeedWeight   float64 `yaml:"speed_weight"`
	TimeAmplitude float64 `yaml:"time_amplitude"`
	TimePeriod    float64 `yaml:"time_period"`
	Jitter        float64 `yaml:"jitter"`
	DepthWeight   float64 `yaml:"depth_weight"`
	DepthScale    float64 `yaml:"depth_scale"`
	TempWeight    float64 `yaml:"temp_weight"`
	TempScale     float64 `yaml:"temp_scale"`
	WindWeight    float64 `yaml:"wind_weight"`
	WindScale     float64 `yaml:"wind_scale"`
	WaveWeight    float64 `yaml:"wave_weight"`
	WaveScale     float64 `yaml:"wave_scale"`
	Floor         float64 `yaml:"floor"`

	// Series shape.
	Samples        int     `yaml:"samples"`
	StepMinutes    int     `yaml:"step_minutes"`
	SecondsPerStep float64 `yaml:"seconds_per_step"`

	// Derived metrics.
	CostPerTon        float64 `yaml:"cost_per_ton"` // USD
	EfficiencyWave    float64 `yaml:"efficiency_wave"`
	EfficiencyWind    float64 `yaml:"efficiency_wind"`
	SlowdownSpeed     float64 `yaml:"slowdown_speed"`
	DistanceHours     float64 `yaml:"distance_hours"`
	OptimalSpeed      float64 `yaml:"optimal_speed"`
	OptimalWaveImpact float64 `yaml:"optimal_wave_impact"`
	OptimalWindImpact float64 `yaml:"optimal_wind_impact"`
	VesselType        string  `yaml:"vessel_type"`
}

// DefaultCoefficients returns the stock generator constants.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		Base:              0.15,
		SpeedWeight:       0.05,
		TimeAmplitude:     0.02,
		TimePeriod:        10,
		Jitter:            0.01,
		DepthWeight:       0.005,
		DepthScale:        1000,
		TempWeight:        0.003,
		TempScale:         30,
		WindWeight:        0.008,
		WindScale:         20,
		WaveWeight:        0.006,
		WaveScale:         5,
		Floor:             0.01,
		Samples:           96,
		StepMinutes:       15,
		SecondsPerStep:    900,
		CostPerTon:        650,
		EfficiencyWave:    5,
		EfficiencyWind:    2,
		SlowdownSpeed:     10,
		DistanceHours:     24,
		OptimalSpeed:      8.5,
		OptimalWaveImpact: 2.0,
		OptimalWindImpact: 10.0,
		VesselType:        "container_1_tier1",
	}
}

// Validate rejects coefficient sets that would break the generator.
func (c Coefficients) Validate() error {
	switch {
	case c.Samples <= 0:
		return fmt.Errorf("samples must be positive, got %d", c.Samples)
	case c.StepMinutes <= 0:
		return fmt.Errorf("step_minutes must be positive, got %d", c.StepMinutes)
	case c.TimePeriod == 0:
		return fmt.Errorf("time_period must be non-zero")
	case c.DepthScale == 0 || c.TempScale == 0 || c.WindScale == 0 || c.WaveScale == 0:
		return fmt.Errorf("factor scales must be non-zero")
	case c.Floor <= 0:
		return fmt.Errorf("floor must be positive, got %v", c.Floor)
	}
	return nil
}

// LoadCoefficients reads a YAML file and overlays it on the defaults.
// Keys missing from the file keep their default values.
func LoadCoefficients(path string) (Coefficients, error) {
	c := DefaultCoefficients()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read coefficients: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parse coefficients %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("coefficients %s: %w", path, err)
	}
	return c, nil
}
