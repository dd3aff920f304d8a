package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/guadaltel/vectors/internal/config"
	"github.com/guadaltel/vectors/internal/loader"
	"github.com/guadaltel/vectors/internal/logger"
	"github.com/guadaltel/vectors/internal/server"
	"github.com/guadaltel/vectors/internal/workspace"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"   env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	CRS        string `long:"crs"              env:"MAP_CRS"        description:"Map CRS, overrides the configuration"`
	Port       int    `short:"p" long:"port"   env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	Compact    bool   `long:"compact"          env:"COMPACT_EXPORT" description:"Minify exported files by default"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.CRS != "" {
		cfg.CRS = opts.CRS
	}
	if opts.Compact {
		cfg.CompactExport = true
	}

	registry, err := cfg.Registry()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up projections")
	}
	m, err := workspace.New(cfg.CRS, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create map")
	}

	ld := loader.New(&http.Client{
		Transport: &http.Transport{MaxIdleConnsPerHost: 4},
		Timeout:   15 * time.Second,
	})

	// Startup layers; a broken one is skipped
	for _, l := range cfg.Layers {
		if _, err := ld.LoadLayer(context.Background(), m, l); err != nil {
			log.Error().Err(err).Str("layer", l.Name).Msg("Failed to load layer")
		}
	}

	srvCtx, err := server.NewServerContext(cfg, m, ld)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}
	handler := server.RequestLogger(srvCtx.Routes())

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("crs", cfg.CRS).
		Int("layers_loaded", len(m.Layers())).
		Msg("Web server started")

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
