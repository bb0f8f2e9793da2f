package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"github.com/epithet-ssh/kvnl/pkg/config"
	"github.com/epithet-ssh/kvnl/pkg/kvnl"
	"github.com/epithet-ssh/kvnl/pkg/kvnlhttp"
	"golang.org/x/oauth2"
)

// SourceFlags select a KVNL stream and how its blocks are sealed.
type SourceFlags struct {
	File        string `arg:"" optional:"" help:"KVNL file to read, - for stdin" default:"-"`
	URL         string `help:"Fetch the stream from a URL instead of a file"`
	TokenFile   string `help:"Bearer token written by 'kvnl login', sent with --url" type:"path"`
	Hash        string `help:"Hash algorithm sealing each block (e.g. md5, sha256)" short:"H"`
	IncludeHash bool   `help:"Include the hash line in the decoded lines"`
	MaxSize     int    `help:"Maximum field length in bytes" default:"0"`
}

func (s *SourceFlags) options(cfg *config.CLI, logger *slog.Logger) []kvnl.Option {
	opts := []kvnl.Option{kvnl.WithLogger(logger)}
	if h := firstNonEmpty(s.Hash, cfg.Hash); h != "" {
		opts = append(opts, kvnl.HashAlgorithm(h))
	}
	if s.IncludeHash || cfg.IncludeHash {
		opts = append(opts, kvnl.IncludeHash())
	}
	maxSize := s.MaxSize
	if maxSize == 0 {
		maxSize = cfg.MaxSize
	}
	if maxSize > 0 {
		opts = append(opts, kvnl.MaxSize(maxSize))
	}
	return opts
}

// each calls fn for every block of the selected stream.
func (s *SourceFlags) each(ctx context.Context, logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, cfg *config.CLI, fn func(int, []kvnl.Line) error) error {
	opts := s.options(cfg, logger)

	if s.URL != "" {
		return s.fetch(ctx, logger, tlsCfg, opts, fn)
	}

	var r io.Reader = os.Stdin
	if s.File != "-" {
		f, err := os.Open(s.File)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	in, err := kvnl.NewLoadStream(r, opts...)
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		lines, err := in.Load()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: block %d: %w", s.File, i, err)
		}
		logger.Debug("block", "index", i, "lines", len(lines), "offset", in.Decoder().Offset())
		if err := fn(i, lines); err != nil {
			return err
		}
	}
}

func (s *SourceFlags) fetch(ctx context.Context, logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, opts []kvnl.Option, fn func(int, []kvnl.Line) error) error {
	var clientOpts []kvnlhttp.ClientOption
	if s.TokenFile != "" {
		tok, err := readTokenFile(s.TokenFile)
		if err != nil {
			return err
		}
		if tok == nil {
			return fmt.Errorf("no token in %s, run 'kvnl login' first", s.TokenFile)
		}
		clientOpts = append(clientOpts, kvnlhttp.WithTokenSource(oauth2.StaticTokenSource(tok)))
	}

	client, err := kvnlhttp.NewClient("", tlsCfg, clientOpts...)
	if err != nil {
		return err
	}
	logger.Info("fetching", "url", s.URL)
	blocks, fetchErr := client.Fetch(ctx, s.URL, opts...)
	for i, lines := range blocks {
		if err := fn(i, lines); err != nil {
			return err
		}
	}
	return fetchErr
}

type DecodeCLI struct {
	SourceFlags `embed:""`
	Format      string `help:"Mustache template rendered for every line ({{block}}, {{index}}, {{key}}, {{{value}}}, {{{text}}}, {{size}})" short:"f"`
}

func (d *DecodeCLI) Run(logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, unifiedConfig cue.Value, out io.Writer) error {
	cfg, err := defaults(unifiedConfig)
	if err != nil {
		return err
	}
	lw, err := newLineWriter(out, firstNonEmpty(d.Format, cfg.Format))
	if err != nil {
		return err
	}
	return d.each(context.Background(), logger, tlsCfg, cfg, lw.writeBlock)
}

type VerifyCLI struct {
	SourceFlags `embed:""`
}

var (
	// ErrNoAlgorithm is returned by verify when no hash algorithm was given.
	ErrNoAlgorithm = errors.New("no hash algorithm: pass --hash or set hash in a config file")

	// ErrUnsealed is returned by verify for a block without a hash line.
	ErrUnsealed = errors.New("block is not sealed")
)

func (v *VerifyCLI) Run(logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, unifiedConfig cue.Value, out io.Writer) error {
	cfg, err := defaults(unifiedConfig)
	if err != nil {
		return err
	}
	algorithm := firstNonEmpty(v.Hash, cfg.Hash)
	if algorithm == "" {
		return ErrNoAlgorithm
	}

	// The hash line is needed to tell sealed blocks from unsealed ones.
	v.IncludeHash = true

	var blocks, lines int
	err = v.each(context.Background(), logger, tlsCfg, cfg, func(i int, block []kvnl.Line) error {
		// Only the lines before the hash line are covered by it.
		sealed := false
		for j, l := range block {
			if l.Key == algorithm {
				sealed = true
				lines += j
				break
			}
		}
		if !sealed {
			return fmt.Errorf("block %d: %w", i, ErrUnsealed)
		}
		blocks++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok: %d blocks, %d lines sealed with %s\n", blocks, lines, algorithm)
	return nil
}

func readTokenFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return kvnlhttp.ReadToken(f)
}
