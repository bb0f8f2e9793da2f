package config

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/epithet-ssh/kvnl/pkg/kvnl"
)

// Document describes a KVNL stream: the blocks to write and the hash that
// seals each of them.
//
//	hash: md5
//	blocks:
//	  - lines:
//	      - {key: a, value: hello}
//	      - {key: blob, base64: AAEC}
//	    unhashed:
//	      - {key: note, value: not covered by the digest}
type Document struct {
	Hash   string  `json:"hash,omitempty"`
	Blocks []Block `json:"blocks"`
}

// Block is one block of a Document.
type Block struct {
	Lines    []Entry `json:"lines"`
	Unhashed []Entry `json:"unhashed,omitempty"`
}

// Entry is one line. Binary values are given as Base64 instead of Value.
type Entry struct {
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// Line converts the entry to a kvnl.Line.
func (e Entry) Line() (kvnl.Line, error) {
	if e.Base64 == "" {
		return kvnl.Line{Key: e.Key, Value: []byte(e.Value)}, nil
	}
	if e.Value != "" {
		return kvnl.Line{}, fmt.Errorf("entry %q sets both value and base64", e.Key)
	}
	value, err := base64.StdEncoding.DecodeString(e.Base64)
	if err != nil {
		return kvnl.Line{}, fmt.Errorf("entry %q: invalid base64: %w", e.Key, err)
	}
	return kvnl.Line{Key: e.Key, Value: value}, nil
}

// Convert returns the hashed and unhashed lines of the block.
func (b Block) Convert() (lines, unhashed []kvnl.Line, err error) {
	if lines, err = convert(b.Lines); err != nil {
		return nil, nil, err
	}
	if unhashed, err = convert(b.Unhashed); err != nil {
		return nil, nil, err
	}
	return lines, unhashed, nil
}

func convert(entries []Entry) ([]kvnl.Line, error) {
	lines := make([]kvnl.Line, 0, len(entries))
	for _, e := range entries {
		line, err := e.Line()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Encode writes every block to w. Each block is sealed with a fresh hash
// when d.Hash is set. Extra options are passed to the stream.
func (d *Document) Encode(w io.Writer, opts ...kvnl.Option) error {
	if d.Hash != "" {
		opts = append(opts, kvnl.HashAlgorithm(d.Hash))
	}
	out, err := kvnl.NewDumpStream(w, opts...)
	if err != nil {
		return err
	}
	for i, b := range d.Blocks {
		lines, unhashed, err := b.Convert()
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if err := out.Dump(lines, unhashed); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

// CLI holds defaults for the kvnl command, read from --config files.
type CLI struct {
	Hash        string  `json:"hash,omitempty"`
	IncludeHash bool    `json:"include_hash,omitempty"`
	MaxSize     int     `json:"max_size,omitempty"`
	Format      string  `json:"format,omitempty"`
	Listen      string  `json:"listen,omitempty"`
	OIDC        OIDC    `json:"oidc,omitempty"`
	Archive     Archive `json:"archive,omitempty"`
}

// OIDC configures token validation for the server and login for clients.
type OIDC struct {
	Issuer   string `json:"issuer,omitempty"`
	Audience string `json:"audience,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// Archive names the S3 location blocks handled by the server are copied to.
type Archive struct {
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}
