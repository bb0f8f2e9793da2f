package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"github.com/epithet-ssh/kvnl/pkg/config"
	"github.com/epithet-ssh/kvnl/pkg/digest"
	"github.com/epithet-ssh/kvnl/pkg/kvnl"
	"github.com/epithet-ssh/kvnl/pkg/kvnlhttp"
)

type EncodeCLI struct {
	File   string `arg:"" help:"Document to encode (.yaml, .json, .cue or a CUE directory), - for YAML on stdin"`
	Hash   string `help:"Hash algorithm sealing each block, overrides the document" short:"H"`
	Sizing string `help:"When to write explicit value sizes: auto, always or never" enum:"auto,always,never" default:"auto"`
	Server string `help:"Encode on a kvnl server instead of locally"`
}

func (e *EncodeCLI) Run(logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, unifiedConfig cue.Value, out io.Writer) error {
	cfg, err := defaults(unifiedConfig)
	if err != nil {
		return err
	}
	doc, err := e.load()
	if err != nil {
		return err
	}
	doc.Hash = firstNonEmpty(e.Hash, doc.Hash, cfg.Hash)

	sizing, err := kvnl.ParseSizing(e.Sizing)
	if err != nil {
		return err
	}
	logger.Info("encoding", "blocks", len(doc.Blocks), "hash", doc.Hash, "sizing", sizing)

	if e.Server != "" {
		client, err := kvnlhttp.NewClient(e.Server, tlsCfg)
		if err != nil {
			return err
		}
		data, err := client.Encode(context.Background(), kvnlhttp.EncodeRequest{Hash: doc.Hash, Blocks: doc.Blocks}, sizing)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	return doc.Encode(out, kvnl.WithSizing(sizing), kvnl.WithLogger(logger))
}

func (e *EncodeCLI) load() (*config.Document, error) {
	if e.File == "-" {
		val, err := config.LoadValueFromReader(os.Stdin)
		if err != nil {
			return nil, err
		}
		return config.Decode[config.Document](val)
	}
	doc, err := config.LoadFromFile[config.Document](e.File)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.File, err)
	}
	return doc, nil
}

type HashesCLI struct {
	Server string `help:"List the algorithms of a kvnl server instead"`
}

func (h *HashesCLI) Run(logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, out io.Writer) error {
	names := digest.Names()
	if h.Server != "" {
		client, err := kvnlhttp.NewClient(h.Server, tlsCfg)
		if err != nil {
			return err
		}
		if names, err = client.Hashes(context.Background()); err != nil {
			return err
		}
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}
