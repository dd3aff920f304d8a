package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/guadaltel/vectors/internal/convert"
	"github.com/guadaltel/vectors/internal/loader"
	"github.com/guadaltel/vectors/internal/logger"
	"github.com/guadaltel/vectors/internal/reproject"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input   string `short:"i" long:"in"     description:"Input file path or http(s) URL (.geojson, .kml, .gpx, .zip)" required:"true"`
	Output  string `short:"o" long:"out"    description:"Output file path, - for stdout. Defaults to the input name with the new extension"`
	Format  string `short:"f" long:"format" description:"Output format" choice:"geojson" choice:"kml" choice:"gpx" choice:"shp" default:"geojson"`
	CRS     string `long:"crs"              description:"CRS of the input coordinates" default:"EPSG:4326"`
	Compact bool   `long:"compact"          description:"Minify XML and JSON output"`
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

	format, err := convert.ParseFormat(opts.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid output format")
	}
	toWGS84, err := reproject.NewRegistry().ToWGS84(opts.CRS)
	if err != nil {
		log.Fatal().Err(err).Str("crs", opts.CRS).Msg("Invalid input CRS")
	}

	f, err := loader.New(nil).ChangeFile(context.Background(), opts.Input)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}
	fs, err := convert.Import(f.Name, f.Data)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse input")
	}
	if len(fs) == 0 {
		log.Info().Str("file", f.Name).Msg("No geometries found in file, nothing written")
		return
	}

	b, err := convert.Export(convert.BaseName(f.Name), fs, format, convert.Options{
		ToWGS84: toWGS84,
		Compact: opts.Compact,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to convert")
	}

	out := opts.Output
	if out == "" {
		out = filepath.Join(".", b.Name)
	}
	if out == "-" {
		if _, err := os.Stdout.Write(b.Data); err != nil {
			log.Fatal().Err(err).Msg("Failed to write output")
		}
		return
	}
	if err := os.WriteFile(out, b.Data, 0644); err != nil {
		log.Fatal().Err(err).Str("path", out).Msg("Failed to write output")
	}

	log.Info().
		Str("in", opts.Input).
		Str("out", out).
		Str("format", string(format)).
		Int("features", len(fs)).
		Msg("Successfully converted")
}
