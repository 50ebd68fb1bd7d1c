package main

import (
	"fmt"
	"io"
	"os"

	odkwkt "github.com/tingold/odk-wkt"
	"github.com/tingold/odk-wkt/internal/config"
	"github.com/tingold/odk-wkt/internal/logger"
	"github.com/tingold/odk-wkt/internal/sheet"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input        string `short:"i" long:"in"            env:"ODK2WKT_INPUT"  description:"Input spreadsheet (.xlsx or .csv)" required:"true"`
	Output       string `short:"o" long:"out"           description:"Output file path. Overwrites the input if empty"`
	Sheet        string `short:"s" long:"sheet"         description:"Sheet name (default: first sheet)"`
	ConfigFile   string `short:"c" long:"config"        env:"ODK2WKT_CONFIG" description:"Path to YAML run file"`
	Point        string `long:"point"                   description:"Source column with geopoint values"`
	Line         string `long:"line"                    description:"Source column with geotrace values"`
	Polygon      string `long:"polygon"                 description:"Source column with geoshape values"`
	PointOut     string `long:"point-out"               description:"Output column for point WKT"`
	LineOut      string `long:"line-out"                description:"Output column for line WKT"`
	PolygonOut   string `long:"polygon-out"             description:"Output column for polygon WKT"`
	Workers      int    `short:"w" long:"workers"       env:"ODK2WKT_WORKERS" description:"Row conversion workers (default: CPU count)"`
	FirstWins    bool   `long:"first-wins"              description:"Use the first of repeated header names instead of failing"`
	ExportDir    string `long:"export-dir"              description:"Also write one layer per geometry kind into this directory"`
	ExportFormat string `long:"export-format"           description:"Layer export format" choice:"fgb" choice:"geojson"`
	ListSheets   bool   `long:"list-sheets"             description:"List sheet names and exit"`
	DryRun       bool   `long:"dry-run"                 description:"Convert and report without saving the spreadsheet"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	report, err := run(opts, os.Stdout)
	if err != nil {
		log.Error().Err(err).Str("input", opts.Input).Msg("Conversion failed")
		os.Exit(1)
	}
	if report != nil && report.Failed() {
		os.Exit(2)
	}
}

// run executes one conversion. The report is nil when only sheets were listed.
func run(opts Options, stdout io.Writer) (*odkwkt.Report, error) {
	if opts.ListSheets {
		names, err := sheet.Sheets(opts.Input)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			fmt.Fprintln(stdout, name)
		}
		return nil, nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	s, err := sheet.Open(opts.Input, cfg.Sheet)
	if err != nil {
		return nil, err
	}

	targets, err := cfg.ResolveSources(s.Headers())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("input", opts.Input).
		Str("sheet", s.Name).
		Int("rows", s.Len()).
		Int("targets", len(targets)).
		Msg("Starting conversion")

	runOpts := cfg.Options()
	runOpts.Logger = &log.Logger

	report, err := odkwkt.Run(s, targets, runOpts)
	if err != nil {
		return nil, err
	}

	for _, f := range report.Failures {
		log.Warn().
			Int("row", f.Row).
			Str("kind", f.Kind.String()).
			Str("column", f.Column).
			Err(f.Err).
			Msg("Row not converted")
	}

	if !opts.DryRun {
		out := opts.Output
		if out == "" {
			out = opts.Input
		}
		if err := s.Save(out); err != nil {
			return nil, fmt.Errorf("save %s: %w", out, err)
		}
		log.Info().Str("output", out).Msg("Saved spreadsheet")
	}

	if cfg.Export.Dir != "" {
		if err := exportLayers(s, report, targets, cfg.Export, opts.Input); err != nil {
			return nil, err
		}
	}

	log.Info().
		Int("rows", report.Rows).
		Int("converted", report.Converted).
		Int("empty", report.Empty).
		Int("failed", len(report.Failures)).
		Bool("dry_run", opts.DryRun).
		Msg("Conversion complete")

	return report, nil
}

// loadConfig reads the optional run file and applies command-line overrides.
func loadConfig(opts Options) (*config.Config, error) {
	cfg := &config.Config{}
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.Sheet != "" {
		cfg.Sheet = opts.Sheet
	}
	if opts.Workers != 0 {
		cfg.Workers = opts.Workers
	}
	if opts.FirstWins {
		cfg.Duplicates = config.DuplicatesFirst
	}
	if opts.ExportDir != "" {
		cfg.Export.Dir = opts.ExportDir
	}
	if opts.ExportFormat != "" {
		cfg.Export.Format = opts.ExportFormat
	}
	if cfg.Export.Format == "" {
		cfg.Export.Format = config.FormatFlatGeobuf
	}

	overrideTarget(cfg, odkwkt.KindPoint, opts.Point, opts.PointOut)
	overrideTarget(cfg, odkwkt.KindLine, opts.Line, opts.LineOut)
	overrideTarget(cfg, odkwkt.KindPolygon, opts.Polygon, opts.PolygonOut)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// overrideTarget sets the source and output of the first configured target
// of kind, adding one when none exists.
func overrideTarget(cfg *config.Config, kind odkwkt.Kind, source, output string) {
	if source == "" && output == "" {
		return
	}

	for i, t := range cfg.Targets {
		if k, err := odkwkt.ParseKind(t.Kind); err != nil || k != kind {
			continue
		}
		if source != "" {
			cfg.Targets[i].Source = source
		}
		if output != "" {
			cfg.Targets[i].Output = output
		}
		return
	}

	cfg.Targets = append(cfg.Targets, config.Target{
		Kind:   kind.String(),
		Source: source,
		Output: output,
	})
}
