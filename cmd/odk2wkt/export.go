package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	odkwkt "github.com/tingold/odk-wkt"
	"github.com/tingold/odk-wkt/internal/config"
	"github.com/tingold/odk-wkt/internal/sheet"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// exportLayers writes one layer file per converted geometry kind.
// Kinds without any converted cell are skipped.
func exportLayers(s *sheet.Sheet, report *odkwkt.Report, targets []odkwkt.Target, exp config.Export, input string) error {
	if err := os.MkdirAll(exp.Dir, 0o755); err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	written := 0

	seen := make(map[odkwkt.Kind]bool)
	for _, t := range targets {
		if seen[t.Kind] {
			continue
		}
		seen[t.Kind] = true

		fc, err := odkwkt.FeatureCollection(s, report, t.Kind, exp.Properties)
		if err != nil {
			return err
		}
		if len(fc.Features) == 0 {
			log.Debug().Str("kind", t.Kind.String()).Msg("No geometries to export")
			continue
		}

		path := filepath.Join(exp.Dir, fmt.Sprintf("%s_%s.%s", base, t.Kind, exp.Format))
		if err := writeLayer(path, fc, exp.Format, fmt.Sprintf("%s_%s", base, t.Kind)); err != nil {
			return fmt.Errorf("export %s: %w", path, err)
		}

		log.Info().
			Str("kind", t.Kind.String()).
			Str("path", path).
			Int("features", len(fc.Features)).
			Msg("Exported layer")
		written++
	}

	if written == 0 {
		log.Warn().Str("dir", exp.Dir).Msg("No layers exported")
	}

	return nil
}

func writeLayer(path string, fc *geojson.FeatureCollection, format, name string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	switch format {
	case config.FormatGeoJSON:
		err = odkwkt.WriteGeoJSON(file, fc)
	default:
		opts := odkwkt.DefaultLayerOptions()
		opts.Name = name
		err = odkwkt.WriteFlatGeobuf(file, fc, opts)
	}
	if err != nil {
		_ = file.Close()
		return err
	}

	return file.Close()
}
