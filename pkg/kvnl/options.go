package kvnl

import (
	"fmt"
	"log/slog"
)

const (
	// SizeThreshold is the longest value written without a declared size
	// when sizing is automatic.
	SizeThreshold = 1024

	// DefaultMaxSize is the default maximum field length (64MB).
	DefaultMaxSize = 64 << 20
)

// Sizing selects how the encoder frames values.
type Sizing int

const (
	// SizeAuto declares the size of values longer than SizeThreshold or
	// containing a newline.
	SizeAuto Sizing = iota
	// SizeAlways declares the size of every value.
	SizeAlways
	// SizeNever never declares a size. Values containing a newline are rejected.
	SizeNever
)

// config holds codec configuration.
type config struct {
	hash        Hash
	algorithm   string
	includeHash bool
	maxSize     int
	sizing      Sizing
	reportReady bool
	logger      *slog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{
		maxSize: DefaultMaxSize,
		sizing:  SizeAuto,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// resolveHash returns the hash configured with WithHash, or a fresh instance
// of the algorithm configured with HashAlgorithm.
func (c *config) resolveHash() (Hash, error) {
	if c.hash != nil || c.algorithm == "" {
		return c.hash, nil
	}
	return NewHash(c.algorithm)
}

// Option configures a Decoder, Encoder, Stream or Buffer.
type Option func(*config)

// WithHash binds a hash instance. Decoders feed it every byte they read and
// check hash lines against it; encoders feed it every byte they write.
func WithHash(h Hash) Option {
	return func(c *config) {
		c.hash = h
	}
}

// HashAlgorithm selects a hash by name, such as "md5" or "sha256". A Stream
// creates a fresh instance of it before every Load and Dump.
func HashAlgorithm(name string) Option {
	return func(c *config) {
		c.algorithm = name
	}
}

// IncludeHash makes block decoding return the hash line along with the others.
//
// Default: false (the hash line is checked and dropped)
func IncludeHash() Option {
	return func(c *config) {
		c.includeHash = true
	}
}

// MaxSize sets the maximum length in bytes of a specification or value.
// Longer fields fail with ErrTooLarge. Zero disables the limit.
//
// This prevents memory exhaustion from malicious size declarations.
//
// Default: 64MB
func MaxSize(n int) Option {
	return func(c *config) {
		c.maxSize = n
	}
}

// WithSizing sets how the encoder frames values.
//
// Default: SizeAuto
func WithSizing(s Sizing) Option {
	return func(c *config) {
		c.sizing = s
	}
}

// ReportReady makes a Buffer return ErrReady once before its items.
func ReportReady() Option {
	return func(c *config) {
		c.reportReady = true
	}
}

// WithLogger sets the logger used for debug output. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

var sizingNames = map[Sizing]string{
	SizeAuto:   "auto",
	SizeAlways: "always",
	SizeNever:  "never",
}

func (s Sizing) String() string {
	if name, ok := sizingNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Sizing(%d)", int(s))
}

// ParseSizing parses "auto", "always" or "never". The empty string is SizeAuto.
func ParseSizing(name string) (Sizing, error) {
	if name == "" {
		return SizeAuto, nil
	}
	for s, n := range sizingNames {
		if n == name {
			return s, nil
		}
	}
	return SizeAuto, fmt.Errorf("unknown sizing %q: should be auto, always or never", name)
}
