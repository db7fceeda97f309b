package types

import "time"

// TargetingRules, MetricsConfig and ExperimentSettings are stored as
// structured JSON columns on the experiment row (datatypes.JSONType), so
// they round-trip typed instead of as opaque text. The yaml tags exist for
// the seed tool, which reads the same shapes from definition files.

type TargetingRules struct {
	// Traffic is the percentage of eligible users admitted into the
	// experiment, 0-100.
	Traffic      float64      `json:"traffic" yaml:"traffic"`
	DeviceTypes  []string     `json:"device_types,omitempty" yaml:"device_types"`
	GeoLocations []string     `json:"geo_locations,omitempty" yaml:"geo_locations"`
	TimeWindows  []TimeWindow `json:"time_windows,omitempty" yaml:"time_windows"`
}

// TimeWindow is a [Start, End) interval. Timezone, when set, is the IANA zone
// the window's wall-clock bounds are read in; it falls back to UTC when
// unparseable.
type TimeWindow struct {
	Start    time.Time `json:"start" yaml:"start"`
	End      time.Time `json:"end" yaml:"end"`
	Timezone string    `json:"timezone,omitempty" yaml:"timezone"`
}

type MetricsConfig struct {
	Primary         string           `json:"primary" yaml:"primary"`
	Secondary       []string         `json:"secondary,omitempty" yaml:"secondary"`
	ConversionGoals []ConversionGoal `json:"conversion_goals,omitempty" yaml:"conversion_goals"`
}

type ConversionGoal struct {
	Name  string   `json:"name" yaml:"name"`
	Event string   `json:"event" yaml:"event"`
	Value *float64 `json:"value,omitempty" yaml:"value"`
}

type ExperimentSettings struct {
	ConfidenceLevel         float64 `json:"confidence_level" yaml:"confidence_level"`
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect,omitempty" yaml:"minimum_detectable_effect"`
	CookieDurationDays      int     `json:"cookie_duration_days,omitempty" yaml:"cookie_duration_days"`
	ExcludeBots             bool    `json:"exclude_bots" yaml:"exclude_bots"`
	StickyVariants          bool    `json:"sticky_variants" yaml:"sticky_variants"`
}

// RequestContext is the per-request visitor context handed to assignment.
// Every field is optional; targeting rules whose field is absent are skipped.
type RequestContext struct {
	UserAgent   string `json:"user_agent,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	GeoLocation string `json:"geo_location,omitempty"`
	DeviceType  string `json:"device_type,omitempty"`
}
