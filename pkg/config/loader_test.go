package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cuelang.org/go/cue"
	"github.com/epithet-ssh/kvnl/pkg/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadFromFile_Document_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doc.yaml", `
hash: md5
blocks:
  - lines:
      - {key: a, value: hello}
      - {key: c, value: world}
  - lines:
      - key: blob
        base64: AAEC
    unhashed:
      - {key: note, value: later}
`)

	doc, err := config.LoadFromFile[config.Document](path)
	if err != nil {
		t.Fatalf("failed to parse document: %v", err)
	}

	if doc.Hash != "md5" {
		t.Errorf("unexpected hash: %s", doc.Hash)
	}
	if len(doc.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(doc.Blocks))
	}
	if doc.Blocks[0].Lines[1].Value != "world" {
		t.Errorf("unexpected value: %s", doc.Blocks[0].Lines[1].Value)
	}
	if doc.Blocks[1].Lines[0].Base64 != "AAEC" {
		t.Errorf("unexpected base64: %s", doc.Blocks[1].Lines[0].Base64)
	}
	if len(doc.Blocks[1].Unhashed) != 1 {
		t.Errorf("expected 1 unhashed line, got %d", len(doc.Blocks[1].Unhashed))
	}
}

func TestLoadFromFile_Document_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doc.json", `{
  "hash": "sha256",
  "blocks": [{"lines": [{"key": "a", "value": "hello"}]}]
}`)

	doc, err := config.LoadFromFile[config.Document](path)
	if err != nil {
		t.Fatalf("failed to parse document: %v", err)
	}
	if doc.Hash != "sha256" || len(doc.Blocks) != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestLoadFromFile_Document_CUE(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doc.cue", `
hash: "md5"
#greeting: "hello"
blocks: [{lines: [{key: "a", value: #greeting}]}]
`)

	doc, err := config.LoadFromFile[config.Document](path)
	if err != nil {
		t.Fatalf("failed to parse document: %v", err)
	}
	if doc.Blocks[0].Lines[0].Value != "hello" {
		t.Errorf("unexpected value: %s", doc.Blocks[0].Lines[0].Value)
	}
}

func TestLoadFromFile_NonexistentFile(t *testing.T) {
	_, err := config.LoadFromFile[config.Document]("/nonexistent/path/doc.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoadValueFromReader(t *testing.T) {
	val, err := config.LoadValueFromReader(strings.NewReader(`{"hash": "sha1", "max_size": 4096}`))
	if err != nil {
		t.Fatalf("LoadValueFromReader failed: %v", err)
	}

	cfg, err := config.Decode[config.CLI](val)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.Hash != "sha1" {
		t.Errorf("unexpected hash: %s", cfg.Hash)
	}
	if cfg.MaxSize != 4096 {
		t.Errorf("unexpected max_size: %d", cfg.MaxSize)
	}
}

func TestLoadValueFromReader_Invalid(t *testing.T) {
	_, err := config.LoadValueFromReader(strings.NewReader("hash: [unterminated"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadValue_DirectPathLookup(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
hash: blake2b
include_hash: true
format: "{{key}}: {{value}}"
`)

	val, err := config.LoadValue(path)
	if err != nil {
		t.Fatalf("LoadValue failed: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"hash", "blake2b"},
		{"format", "{{key}}: {{value}}"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := val.LookupPath(cue.ParsePath(tt.path)).String()
			if err != nil {
				t.Fatalf("failed to look up %s: %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	include, err := val.LookupPath(cue.ParsePath("include_hash")).Bool()
	if err != nil || !include {
		t.Errorf("expected include_hash to be true, got %v (%v)", include, err)
	}

	if val.LookupPath(cue.ParsePath("listen")).Exists() {
		t.Error("expected listen to be absent")
	}
}

// Tests for LoadAndUnifyPaths

func TestLoadAndUnifyPaths_SingleYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
hash: md5
`)

	val, err := config.LoadAndUnifyPaths([]string{path})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}

	hash, err := val.LookupPath(cue.ParsePath("hash")).String()
	if err != nil {
		t.Fatalf("failed to get hash: %v", err)
	}
	if hash != "md5" {
		t.Errorf("expected md5, got %s", hash)
	}
}

func TestLoadAndUnifyPaths_MultipleFilesCompatible(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", `
hash: sha256
`)
	server := writeFile(t, dir, "server.cue", `
listen: ":9090"
`)

	val, err := config.LoadAndUnifyPaths([]string{base, server})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}

	cfg, err := config.Decode[config.CLI](val)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.Hash != "sha256" || cfg.Listen != ":9090" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadAndUnifyPaths_ConflictingValues(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "hash: md5\n")
	b := writeFile(t, dir, "b.yaml", "hash: sha1\n")

	_, err := config.LoadAndUnifyPaths([]string{a, b})
	if err == nil {
		t.Fatal("expected error for conflicting values, got nil")
	}
}

func TestLoadAndUnifyPaths_GlobPattern(t *testing.T) {
	confDir := filepath.Join(t.TempDir(), "config.d")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, confDir, "a.yaml", "hash: md5\n")
	writeFile(t, confDir, "b.yaml", "include_hash: true\n")

	val, err := config.LoadAndUnifyPaths([]string{filepath.Join(confDir, "*.yaml")})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}

	cfg, err := config.Decode[config.CLI](val)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.Hash != "md5" || !cfg.IncludeHash {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadAndUnifyPaths_MissingFilesSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "exists.yaml", "format: \"{{key}}\"\n")

	val, err := config.LoadAndUnifyPaths([]string{
		filepath.Join(dir, "does-not-exist.yaml"),
		path,
	})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}

	format, err := val.LookupPath(cue.ParsePath("format")).String()
	if err != nil {
		t.Fatalf("failed to get format: %v", err)
	}
	if format != "{{key}}" {
		t.Errorf("expected {{key}}, got %s", format)
	}
}

func TestLoadAndUnifyPaths_EmptyResult(t *testing.T) {
	val, err := config.LoadAndUnifyPaths([]string{
		filepath.Join(t.TempDir(), "does-not-exist.yaml"),
	})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}
	if !val.Exists() {
		t.Error("expected value to exist (empty object)")
	}

	cfg, err := config.Decode[config.CLI](val)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *cfg != (config.CLI{}) {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestDecodeCLI_ServerSections(t *testing.T) {
	val, err := config.LoadValueFromReader(strings.NewReader(`
listen: ":8443"
oidc:
  issuer: https://accounts.example.com
  audience: kvnl
archive:
  bucket: kvnl-blocks
  prefix: prod
`))
	if err != nil {
		t.Fatalf("LoadValueFromReader failed: %v", err)
	}

	cfg, err := config.Decode[config.CLI](val)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.OIDC.Issuer != "https://accounts.example.com" || cfg.OIDC.Audience != "kvnl" {
		t.Errorf("unexpected oidc config: %+v", cfg.OIDC)
	}
	if cfg.Archive.Bucket != "kvnl-blocks" || cfg.Archive.Prefix != "prod" {
		t.Errorf("unexpected archive config: %+v", cfg.Archive)
	}
}
