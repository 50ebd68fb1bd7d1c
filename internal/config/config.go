// Package config handles loading of conversion run files.
package config

import (
	"fmt"
	"os"
	"strings"

	odkwkt "github.com/tingold/odk-wkt"

	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatFlatGeobuf = "fgb"
	FormatGeoJSON    = "geojson"
)

// Duplicate header policies.
const (
	DuplicatesReject = "reject"
	DuplicatesFirst  = "first"
)

// Config represents the root structure of a run file.
type Config struct {
	Sheet      string   `yaml:"sheet,omitempty"`
	Duplicates string   `yaml:"duplicates,omitempty"`
	Targets    []Target `yaml:"targets,omitempty"`
	Export     Export   `yaml:"export,omitempty"`
	Workers    int      `yaml:"workers,omitempty"`
}

// Target is one geometry column to convert. An empty source is filled in
// from well-known ODK header names by ResolveSources.
type Target struct {
	Kind   string `yaml:"kind"`
	Source string `yaml:"source,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// Export describes optional per-kind layer output.
type Export struct {
	Dir        string   `yaml:"dir,omitempty"`
	Format     string   `yaml:"format,omitempty"`
	Properties []string `yaml:"properties,omitempty"`
}

// wellKnown lists header names ODK exports and the QGIS plugin use for each kind.
var wellKnown = map[odkwkt.Kind][]string{
	odkwkt.KindPoint:   {"Point", "geopoint"},
	odkwkt.KindLine:    {"Trace", "geotrace", "Line"},
	odkwkt.KindPolygon: {"Polygon", "geoshape", "Shape"},
}

// Load reads and parses the YAML run file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Workers < 0 {
		errs = append(errs, fmt.Sprintf("workers must not be negative, got %d", c.Workers))
	}
	switch c.Duplicates {
	case "", DuplicatesReject, DuplicatesFirst:
	default:
		errs = append(errs, fmt.Sprintf("duplicates must be %q or %q, got %q", DuplicatesReject, DuplicatesFirst, c.Duplicates))
	}

	outputs := make(map[string]int)
	for i, t := range c.Targets {
		kind, err := odkwkt.ParseKind(t.Kind)
		if err != nil {
			errs = append(errs, fmt.Sprintf("targets[%d].kind: unknown kind %q", i, t.Kind))
			continue
		}
		if t.Source != "" && strings.TrimSpace(t.Source) == "" {
			errs = append(errs, fmt.Sprintf("targets[%d].source is blank", i))
		}
		out := odkwkt.Target{Kind: kind, Output: t.Output}.OutputName()
		if strings.TrimSpace(out) == "" {
			errs = append(errs, fmt.Sprintf("targets[%d].output is blank", i))
			continue
		}
		if prev, ok := outputs[out]; ok {
			errs = append(errs, fmt.Sprintf("targets[%d].output %q already used by targets[%d]", i, out, prev))
		} else {
			outputs[out] = i
		}
	}

	switch c.Export.Format {
	case "", FormatFlatGeobuf, FormatGeoJSON:
	default:
		errs = append(errs, fmt.Sprintf("export.format must be %q or %q, got %q", FormatFlatGeobuf, FormatGeoJSON, c.Export.Format))
	}
	if len(c.Export.Properties) > 0 && c.Export.Dir == "" {
		errs = append(errs, "export.properties requires export.dir")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ResolveSources turns the configured targets into conversion targets for a
// sheet with the given headers. Targets without a source use the first
// well-known header name for their kind. With no targets configured, one
// target is produced for every kind whose well-known header is present.
func (c *Config) ResolveSources(headers []odkwkt.Header) ([]odkwkt.Target, error) {
	if len(c.Targets) == 0 {
		var targets []odkwkt.Target
		for _, kind := range odkwkt.Kinds {
			if name, ok := findWellKnown(headers, kind); ok {
				targets = append(targets, odkwkt.Target{Kind: kind, Source: name})
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: no geometry column found in header row", odkwkt.ErrUnknownColumn)
		}
		return targets, nil
	}

	targets := make([]odkwkt.Target, 0, len(c.Targets))
	for i, t := range c.Targets {
		kind, err := odkwkt.ParseKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}

		source := t.Source
		if source == "" {
			name, ok := findWellKnown(headers, kind)
			if !ok {
				return nil, fmt.Errorf("targets[%d]: %w: no %s column, tried %s",
					i, odkwkt.ErrUnknownColumn, kind, strings.Join(wellKnown[kind], ", "))
			}
			source = name
		}

		targets = append(targets, odkwkt.Target{Kind: kind, Source: source, Output: t.Output})
	}

	return targets, nil
}

// Options converts the run settings to library options.
func (c *Config) Options() *odkwkt.Options {
	opts := odkwkt.DefaultOptions()
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}
	if c.Duplicates == DuplicatesFirst {
		opts.Duplicates = odkwkt.FirstOccurrenceWins
	}
	opts.KeepGeometries = c.Export.Dir != ""
	return opts
}

// findWellKnown returns the actual header text matching one of the kind's
// well-known names, in preference order.
func findWellKnown(headers []odkwkt.Header, kind odkwkt.Kind) (string, bool) {
	for _, want := range wellKnown[kind] {
		for _, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h.Name), want) {
				return h.Name, true
			}
		}
	}
	return "", false
}
