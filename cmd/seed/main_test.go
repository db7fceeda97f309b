package main

import (
	"testing"
	"time"
)

const seedDoc = `
experiments:
  - name: cta-copy
    description: headline test
    status: draft
    min_sample_size: 200
    max_duration_days: 14
    variants:
      - name: control
        weight: 50
        content:
          headline: Talk to us
      - name: treatment
        weight: 50
        content:
          headline: Free case review
    targeting_rules:
      traffic: 50
      device_types: ["mobile", "tablet"]
      geo_locations: ["US"]
      time_windows:
        - start: 2026-03-10T09:00:00Z
          end: 2026-03-10T17:00:00Z
          timezone: America/New_York
    metrics:
      primary: purchase
      secondary: ["page_view"]
    settings:
      confidence_level: 0.99
      exclude_bots: true
      sticky_variants: true
`

func TestParseSeedFileKeepsSnakeCaseKeys(t *testing.T) {
	definitions, err := parseSeedFile([]byte(seedDoc))
	if err != nil {
		t.Fatalf("parseSeedFile: %v", err)
	}
	if len(definitions.Experiments) != 1 {
		t.Fatalf("experiments: want=1 got=%d", len(definitions.Experiments))
	}
	definition := definitions.Experiments[0]

	rules := definition.TargetingRules
	if rules.Traffic != 50 {
		t.Fatalf("traffic: want=50 got=%v", rules.Traffic)
	}
	if len(rules.DeviceTypes) != 2 || rules.DeviceTypes[0] != "mobile" {
		t.Fatalf("device_types: %v", rules.DeviceTypes)
	}
	if len(rules.GeoLocations) != 1 || rules.GeoLocations[0] != "US" {
		t.Fatalf("geo_locations: %v", rules.GeoLocations)
	}
	if len(rules.TimeWindows) != 1 {
		t.Fatalf("time_windows: %v", rules.TimeWindows)
	}
	window := rules.TimeWindows[0]
	if window.Timezone != "America/New_York" {
		t.Fatalf("timezone: %q", window.Timezone)
	}
	if want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC); !window.Start.Equal(want) {
		t.Fatalf("window start: want=%v got=%v", want, window.Start)
	}

	if definition.Metrics.Primary != "purchase" || len(definition.Metrics.Secondary) != 1 {
		t.Fatalf("metrics: %+v", definition.Metrics)
	}

	settings := definition.Settings
	if settings.ConfidenceLevel != 0.99 {
		t.Fatalf("confidence_level: want=0.99 got=%v", settings.ConfidenceLevel)
	}
	if !settings.ExcludeBots || !settings.StickyVariants {
		t.Fatalf("bool settings dropped: %+v", settings)
	}

	if definition.MinSampleSize != 200 || definition.MaxDurationDays != 14 {
		t.Fatalf("sizing: %+v", definition)
	}
}

func TestBuildExperimentCarriesConfig(t *testing.T) {
	definitions, err := parseSeedFile([]byte(seedDoc))
	if err != nil {
		t.Fatalf("parseSeedFile: %v", err)
	}
	experiment := buildExperiment(definitions.Experiments[0])

	if experiment.Name != "cta-copy" || experiment.Status != "draft" {
		t.Fatalf("header fields: %q %q", experiment.Name, experiment.Status)
	}
	if len(experiment.Variants) != 2 {
		t.Fatalf("variants: want=2 got=%d", len(experiment.Variants))
	}
	if string(experiment.Variants[0].Content) != `{"headline":"Talk to us"}` {
		t.Fatalf("variant content: %s", experiment.Variants[0].Content)
	}
	if got := experiment.TargetingRules.Data(); got.Traffic != 50 || len(got.DeviceTypes) != 2 {
		t.Fatalf("targeting rules: %+v", got)
	}
	if got := experiment.Settings.Data(); got.ConfidenceLevel != 0.99 || !got.ExcludeBots {
		t.Fatalf("settings: %+v", got)
	}
}
