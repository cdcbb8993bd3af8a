package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/transport"
)

// DefaultConfigPath is the path to the canonical fusion defaults file.
const DefaultConfigPath = "config/fusion.defaults.json"

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// FusionConfig is the flat JSON configuration for the fusion loop, its
// classifier and the serial link. Unset fields fall back to the defaults
// returned by the Get* accessors, so partial files are safe.
type FusionConfig struct {
	// Camera geometry
	CameraWidthPixels *float64 `json:"camera_width_pixels,omitempty"`
	CameraHFOVDegrees *float64 `json:"camera_hfov_degrees,omitempty"`
	CaptureTimeout    *string  `json:"capture_timeout,omitempty"` // duration string like "1s"

	// Lidar matching
	MatchToleranceDegrees *float64 `json:"match_tolerance_degrees,omitempty"`
	MatchPolicy           *string  `json:"match_policy,omitempty"` // "last" or "closest"

	// Classifier
	PersonClassID  *int `json:"person_class_id,omitempty"`
	VehicleClassLo *int `json:"vehicle_class_lo,omitempty"`
	VehicleClassHi *int `json:"vehicle_class_hi,omitempty"`
	AnimalClassLo  *int `json:"animal_class_lo,omitempty"`
	AnimalClassHi  *int `json:"animal_class_hi,omitempty"`

	// Sector bounds, open intervals in lidar degrees
	SectorLeftMin  *float64 `json:"sector_left_min,omitempty"`
	SectorLeftMax  *float64 `json:"sector_left_max,omitempty"`
	SectorRightMin *float64 `json:"sector_right_min,omitempty"`
	SectorRightMax *float64 `json:"sector_right_max,omitempty"`

	// Proximity
	ForwardArcs          []fusion.AngleRange `json:"forward_arcs,omitempty"`
	ProximityThresholdMm *float64            `json:"proximity_threshold_mm,omitempty"`

	// Serial link
	SerialBaudRate      *int    `json:"serial_baud_rate,omitempty"`
	SerialDataBits      *int    `json:"serial_data_bits,omitempty"`
	SerialStopBits      *int    `json:"serial_stop_bits,omitempty"`
	SerialParity        *string `json:"serial_parity,omitempty"`
	SerialReadTimeoutMs *int    `json:"serial_read_timeout_ms,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultFusionConfig returns a config with every field populated with its
// built-in default. It mirrors config/fusion.defaults.json.
func DefaultFusionConfig() *FusionConfig {
	sectors := fusion.DefaultSectorBounds()
	cls := fusion.DefaultClassifier()
	return &FusionConfig{
		CameraWidthPixels:     ptrFloat64(defaultCameraWidthPixels),
		CameraHFOVDegrees:     ptrFloat64(defaultCameraHFOVDegrees),
		CaptureTimeout:        ptrString("1s"),
		MatchToleranceDegrees: ptrFloat64(float64(fusion.DefaultMatchTolerance)),
		MatchPolicy:           ptrString(string(fusion.MatchLastWins)),
		PersonClassID:         ptrInt(cls.PersonID),
		VehicleClassLo:        ptrInt(cls.Vehicle.Lo),
		VehicleClassHi:        ptrInt(cls.Vehicle.Hi),
		AnimalClassLo:         ptrInt(cls.Animal.Lo),
		AnimalClassHi:         ptrInt(cls.Animal.Hi),
		SectorLeftMin:         ptrFloat64(float64(sectors.Left.Min)),
		SectorLeftMax:         ptrFloat64(float64(sectors.Left.Max)),
		SectorRightMin:        ptrFloat64(float64(sectors.Right.Min)),
		SectorRightMax:        ptrFloat64(float64(sectors.Right.Max)),
		ForwardArcs:           fusion.DefaultForwardArc(),
		ProximityThresholdMm:  ptrFloat64(float64(fusion.DefaultProximityThresholdMm)),
		SerialBaudRate:        ptrInt(transport.DefaultBaudRate),
		SerialDataBits:        ptrInt(8),
		SerialStopBits:        ptrInt(1),
		SerialParity:          ptrString("N"),
		SerialReadTimeoutMs:   ptrInt(int(transport.DefaultReadTimeout / time.Millisecond)),
	}
}

const (
	defaultCameraWidthPixels = 1280
	defaultCameraHFOVDegrees = 62.0
	defaultCaptureTimeout    = time.Second
)

// LoadFusionConfig loads a FusionConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadFusionConfig(path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FusionConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *FusionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFusionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that every set value is usable.
func (c *FusionConfig) Validate() error {
	if c.CameraWidthPixels != nil && *c.CameraWidthPixels <= 0 {
		return fmt.Errorf("camera_width_pixels must be positive, got %g", *c.CameraWidthPixels)
	}
	if c.CameraHFOVDegrees != nil {
		if v := *c.CameraHFOVDegrees; v <= 0 || v >= 360 {
			return fmt.Errorf("camera_hfov_degrees must be in (0, 360), got %g", v)
		}
	}
	if c.CaptureTimeout != nil && *c.CaptureTimeout != "" {
		d, err := time.ParseDuration(*c.CaptureTimeout)
		if err != nil {
			return fmt.Errorf("invalid capture_timeout '%s': %w", *c.CaptureTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("capture_timeout must be positive, got %s", d)
		}
	}
	if c.MatchToleranceDegrees != nil {
		if v := *c.MatchToleranceDegrees; v <= 0 || v > 180 {
			return fmt.Errorf("match_tolerance_degrees must be in (0, 180], got %g", v)
		}
	}
	if c.MatchPolicy != nil {
		if _, err := fusion.ParseMatchPolicy(*c.MatchPolicy); err != nil {
			return err
		}
	}
	if r := c.GetVehicleClassRange(); r.Lo > r.Hi {
		return fmt.Errorf("vehicle class range is empty: %d > %d", r.Lo, r.Hi)
	}
	if r := c.GetAnimalClassRange(); r.Lo > r.Hi {
		return fmt.Errorf("animal class range is empty: %d > %d", r.Lo, r.Hi)
	}
	sectors := c.GetSectorBounds()
	for name, r := range map[string]fusion.AngleRange{"left": sectors.Left, "right": sectors.Right} {
		if err := validateArc(r); err != nil {
			return fmt.Errorf("sector_%s: %w", name, err)
		}
	}
	for i, r := range c.ForwardArcs {
		if err := validateArc(r); err != nil {
			return fmt.Errorf("forward_arcs[%d]: %w", i, err)
		}
	}
	if c.ProximityThresholdMm != nil && *c.ProximityThresholdMm <= 0 {
		return fmt.Errorf("proximity_threshold_mm must be positive, got %g", *c.ProximityThresholdMm)
	}
	if _, err := c.PortOptions().Normalise(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	return nil
}

func validateArc(r fusion.AngleRange) error {
	if r.Min < 0 || r.Max > 360 || r.Min >= r.Max {
		return fmt.Errorf("angle range (%g, %g) must satisfy 0 <= min < max <= 360", r.Min, r.Max)
	}
	return nil
}
