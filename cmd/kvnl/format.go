package main

import (
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/cbroglie/mustache"
	"github.com/epithet-ssh/kvnl/pkg/kvnl"
)

// defaultFormat prints one line per entry. Binary values are quoted.
const defaultFormat = "{{block}}\t{{key}}\t{{{text}}}\n"

// lineWriter renders decoded lines through a mustache template. The template
// sees block, index, key, value (raw bytes as a string), text (value, quoted
// when it is not printable UTF-8) and size.
type lineWriter struct {
	w    io.Writer
	tmpl *mustache.Template
}

func newLineWriter(w io.Writer, format string) (*lineWriter, error) {
	if format == "" {
		format = defaultFormat
	}
	tmpl, err := mustache.ParseString(format)
	if err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}
	return &lineWriter{w: w, tmpl: tmpl}, nil
}

func (lw *lineWriter) writeBlock(block int, lines []kvnl.Line) error {
	for i, l := range lines {
		if err := lw.tmpl.FRender(lw.w, lineContext(block, i, l)); err != nil {
			return err
		}
	}
	return nil
}

func lineContext(block, index int, l kvnl.Line) map[string]any {
	return map[string]any{
		"block": block,
		"index": index,
		"key":   l.Key,
		"value": string(l.Value),
		"text":  text(l.Value),
		"size":  len(l.Value),
	}
}

func text(v []byte) string {
	if !utf8.Valid(v) {
		return strconv.Quote(string(v))
	}
	for _, r := range string(v) {
		if r != '\t' && !strconv.IsPrint(r) {
			return strconv.Quote(string(v))
		}
	}
	return string(v)
}
