// Package config loads KVNL document descriptions and CLI defaults.
// It supports YAML, JSON, and CUE file formats using CUE as the underlying parser.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/encoding/yaml"
)

// LoadValueFromReader loads configuration from an io.Reader and returns a CUE value.
// The content is parsed as YAML, which is a superset of JSON.
func LoadValueFromReader(r io.Reader) (cue.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}
	return buildData(cuecontext.New(), "", data)
}

// LoadValue loads configuration from a file and returns a CUE value.
//
// For .cue files and directories: uses CUE's load.Instances so packages and
// imports work. For .yaml/.yml/.json files: parses the data directly.
func LoadValue(path string) (cue.Value, error) {
	return loadValue(cuecontext.New(), path)
}

func loadValue(ctx *cue.Context, path string) (cue.Value, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to stat path: %w", err)
	}

	if fileInfo.IsDir() || strings.HasSuffix(strings.ToLower(path), ".cue") {
		return buildInstance(ctx, path, fileInfo.IsDir())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read file: %w", err)
	}
	return buildData(ctx, path, data)
}

func buildInstance(ctx *cue.Context, path string, dir bool) (cue.Value, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	cfg := &load.Config{
		Dir:       filepath.Dir(absPath),
		DataFiles: true,
	}
	args := []string{absPath}
	if dir {
		args = []string{path}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no instances loaded from %s", path)
	}
	if inst := instances[0]; inst.Err != nil {
		return cue.Value{}, fmt.Errorf("failed to load config: %w", inst.Err)
	}

	val := ctx.BuildInstance(instances[0])
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to build CUE value: %w", err)
	}
	return val, nil
}

// buildData parses JSON by extension and everything else as YAML.
func buildData(ctx *cue.Context, path string, data []byte) (cue.Value, error) {
	var val cue.Value
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		val = ctx.CompileBytes(data, cue.Filename(path))
	} else {
		file, err := yaml.Extract(path, data)
		if err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse config: %w", err)
		}
		val = ctx.BuildFile(file)
	}
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to build CUE value: %w", err)
	}
	return val, nil
}

// LoadAndUnifyPaths loads every file matching the glob patterns and unifies
// them into one value. Patterns matching nothing are skipped, so the result
// may be an empty struct. Conflicting values are an error.
func LoadAndUnifyPaths(patterns []string) (cue.Value, error) {
	ctx := cuecontext.New()
	unified := ctx.CompileString("{}")

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return cue.Value{}, fmt.Errorf("bad config pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			val, err := loadValue(ctx, path)
			if err != nil {
				return cue.Value{}, fmt.Errorf("%s: %w", path, err)
			}
			unified = unified.Unify(val)
		}
	}

	if err := unified.Validate(); err != nil {
		return cue.Value{}, fmt.Errorf("config files conflict: %w", err)
	}
	return unified, nil
}

// LoadFromFile loads configuration from a file or directory into the specified type.
//
// Examples:
//
//	doc, err := LoadFromFile[Document]("blocks.yaml")
//	doc, err := LoadFromFile[Document]("./blocks")  // loads .cue directory
func LoadFromFile[T any](path string) (*T, error) {
	val, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	return Decode[T](val)
}

// Decode decodes a CUE value into the specified type.
func Decode[T any](val cue.Value) (*T, error) {
	var out T
	if err := val.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &out, nil
}
