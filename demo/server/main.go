package main

import (
	"fmt"
	"net/http"
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

	Input      string `short:"i" long:"in"         env:"DEMO_INPUT"     description:"Spreadsheet to convert at startup" required:"true"`
	Sheet      string `short:"s" long:"sheet"      env:"DEMO_SHEET"     description:"Sheet name (default: first sheet)"`
	ConfigFile string `short:"c" long:"config"     env:"DEMO_CONFIG"    description:"Path to YAML run file"`
	ClientDir  string `long:"client-dir"           env:"DEMO_CLIENT"    description:"Directory with static client files" default:"../client"`
	Addr       string `short:"a" long:"addr"       env:"LISTEN_ADDRESS" description:"Address to listen on"              default:"localhost"`
	Port       int    `short:"p" long:"port"       env:"LISTEN_PORT"    description:"Port to listen on"                 default:"8080"`
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

	cfg := &config.Config{}
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		cfg = loaded
	}
	if opts.Sheet != "" {
		cfg.Sheet = opts.Sheet
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	s, err := sheet.Open(opts.Input, cfg.Sheet)
	if err != nil {
		log.Fatal().Err(err).Str("input", opts.Input).Msg("Failed to open spreadsheet")
	}

	targets, err := cfg.ResolveSources(s.Headers())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve geometry columns")
	}

	runOpts := cfg.Options()
	runOpts.KeepGeometries = true
	runOpts.Logger = &log.Logger

	report, err := odkwkt.Run(s, targets, runOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("Conversion failed")
	}
	for _, f := range report.Failures {
		log.Warn().Int("row", f.Row).Str("column", f.Column).Err(f.Err).Msg("Row not converted")
	}

	layers, err := buildLayers(s, report, cfg.Export.Properties)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build layers")
	}

	handler := RequestLogger(newMux(layers, http.Dir(opts.ClientDir)))

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("sheet", s.Name).
		Int("layers", len(layers.kinds)).
		Str("client_dir", opts.ClientDir).
		Msg("Server starting")

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
