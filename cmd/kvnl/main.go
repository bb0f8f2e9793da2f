package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"github.com/alecthomas/kong"
	"github.com/epithet-ssh/kvnl/pkg/config"
	"github.com/epithet-ssh/kvnl/pkg/kvnlhttp"
	"github.com/lmittmann/tint"
)

type CLI struct {
	Verbose  int      `short:"v" type:"counter" help:"Increase verbosity (-v for info, -vv for debug)"`
	Config   []string `help:"Config files to unify, globs allowed (YAML, JSON or CUE)" env:"KVNL_CONFIG" default:"${config_pattern}"`
	Insecure bool     `help:"Allow http:// URLs and skip TLS verification (NOT RECOMMENDED)"`
	CACert   string   `name:"ca-cert" help:"PEM file with CA certificates to trust" type:"existingfile"`

	Encode EncodeCLI `cmd:"" help:"Encode a YAML, JSON or CUE document as KVNL"`
	Decode DecodeCLI `cmd:"" help:"Decode a KVNL stream"`
	Verify VerifyCLI `cmd:"" help:"Check the seal of every block in a KVNL stream"`
	Hashes HashesCLI `cmd:"" help:"List the supported hash algorithms"`
	Serve  ServeCLI  `cmd:"" help:"Run the KVNL HTTP service"`
	Login  LoginCLI  `cmd:"" help:"Obtain a token for a protected server"`
	AWS    AWSCLI    `cmd:"aws" help:"Run on AWS"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("kvnl"),
		kong.Description("Encode, decode and verify KVNL key/value streams."),
		kong.UsageOnError(),
		kong.Vars{
			"config_pattern": defaultConfigPattern(),
			"token_file":     defaultTokenFile(),
		},
		kong.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil)),
	)

	logger := newLogger(os.Stderr, cli.Verbose)

	unified, err := config.LoadAndUnifyPaths(cli.Config)
	ctx.FatalIfErrorf(err)

	tlsCfg := kvnlhttp.TLSConfig{Insecure: cli.Insecure, CACertFile: cli.CACert}
	if cli.Insecure {
		logger.Warn("TLS verification disabled")
	}

	err = ctx.Run(logger, tlsCfg, unified)
	ctx.FatalIfErrorf(err)
}

func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity == 1:
		level = slog.LevelInfo
	case verbosity >= 2:
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func defaultConfigPattern() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kvnl", "config.d", "*")
}

// defaults decodes the CLI section of the unified config files.
func defaults(unified cue.Value) (*config.CLI, error) {
	if !unified.Exists() {
		return &config.CLI{}, nil
	}
	return config.Decode[config.CLI](unified)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
