// Package kvnlhttp serves KVNL encoding and decoding over HTTP, and provides
// a client for it.
package kvnlhttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/epithet-ssh/kvnl/pkg/config"
	"github.com/epithet-ssh/kvnl/pkg/digest"
	"github.com/epithet-ssh/kvnl/pkg/kvnl"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ContentType is the media type of a KVNL stream.
const ContentType = "text/x-kvnl; charset=binary"

// DefaultBodyLimit is the largest request body the server reads.
const DefaultBodyLimit = 8 << 20

// Line is the JSON form of a line. Value holds the exact bytes (base64 in
// JSON); Text repeats them when they are valid UTF-8.
type Line struct {
	Key   string  `json:"key"`
	Value []byte  `json:"value"`
	Text  *string `json:"text,omitempty"`
}

// DecodeResponse is the response to POST /v1/decode.
type DecodeResponse struct {
	Blocks [][]Line `json:"blocks"`
}

// EncodeRequest is the body of POST /v1/encode.
type EncodeRequest struct {
	Hash   string         `json:"hash,omitempty"`
	Blocks []config.Block `json:"blocks"`
}

// HashesResponse is the response to GET /v1/hashes.
type HashesResponse struct {
	Algorithms []string `json:"algorithms"`
}

// NewLine converts a kvnl.Line to its JSON form.
func NewLine(l kvnl.Line) Line {
	line := Line{Key: l.Key, Value: l.Value}
	if line.Value == nil {
		line.Value = []byte{}
	}
	if utf8.Valid(l.Value) {
		text := string(l.Value)
		line.Text = &text
	}
	return line
}

type server struct {
	log       *slog.Logger
	bodyLimit int64
	maxSize   int
	blocks    BlockLogger
	validator *Validator
}

// Option configures the server.
type Option func(*server)

// WithBodyLimit sets the largest request body the server reads.
//
// Default: 8MB
func WithBodyLimit(n int64) Option {
	return func(s *server) {
		s.bodyLimit = n
	}
}

// WithMaxSize sets the largest specification or value the server decodes.
func WithMaxSize(n int) Option {
	return func(s *server) {
		s.maxSize = n
	}
}

// WithBlockLogger records every block handled by the server.
func WithBlockLogger(l BlockLogger) Option {
	return func(s *server) {
		s.blocks = l
	}
}

// WithValidator requires a valid OIDC bearer token on the /v1 routes.
func WithValidator(v *Validator) Option {
	return func(s *server) {
		s.validator = v
	}
}

// New creates the HTTP handler. Mount it on a router, a la
// `r.Mount("/", kvnlhttp.New(logger))`.
//
// Routes:
//
//	POST /v1/decode?hash=md5&include_hash=true  KVNL in, JSON out
//	POST /v1/encode?hash=md5&sizing=auto        JSON in, KVNL out
//	GET  /v1/hashes                             supported algorithms
//	GET  /healthz
func New(log *slog.Logger, opts ...Option) http.Handler {
	s := &server{
		log:       log,
		bodyLimit: DefaultBodyLimit,
		maxSize:   kvnl.DefaultMaxSize,
		blocks:    NoopBlockLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Route("/v1", func(r chi.Router) {
		if s.validator != nil {
			r.Use(s.validator.Middleware)
		}
		r.Get("/hashes", s.hashes)
		r.Post("/decode", s.decode)
		r.Post("/encode", s.encode)
	})
	return r
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

func (s *server) hashes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HashesResponse{Algorithms: digest.Names()})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := []kvnl.Option{kvnl.MaxSize(s.maxSize), kvnl.WithLogger(s.log)}
	algorithm := q.Get("hash")
	if algorithm != "" {
		opts = append(opts, kvnl.HashAlgorithm(algorithm))
	}
	if v := q.Get("include_hash"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, fmt.Errorf("invalid include_hash %q", v))
			return
		}
		if include {
			opts = append(opts, kvnl.IncludeHash())
		}
	}

	in, err := kvnl.NewLoadStream(http.MaxBytesReader(w, r.Body, s.bodyLimit), opts...)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	resp := DecodeResponse{Blocks: [][]Line{}}
	for i := 0; ; i++ {
		lines, err := in.Load()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.fail(w, r, statusFor(err), fmt.Errorf("block %d: %w", i, err))
			return
		}

		block := make([]Line, 0, len(lines))
		for _, l := range lines {
			block = append(block, NewLine(l))
		}
		resp.Blocks = append(resp.Blocks, block)
		hashed, unhashed := in.Decoder().SplitBlock(lines)
		s.logBlock(r, "decode", i, algorithm, in.Decoder().Hash(), hashed, unhashed)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) encode(w http.ResponseWriter, r *http.Request) {
	var req EncodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.bodyLimit)).Decode(&req); err != nil {
		s.fail(w, r, statusFor(err), fmt.Errorf("unable to parse body: %w", err))
		return
	}

	q := r.URL.Query()
	algorithm := req.Hash
	if h := q.Get("hash"); h != "" {
		algorithm = h
	}
	sizing, err := kvnl.ParseSizing(q.Get("sizing"))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	opts := []kvnl.Option{kvnl.WithSizing(sizing), kvnl.WithLogger(s.log)}
	if algorithm != "" {
		opts = append(opts, kvnl.HashAlgorithm(algorithm))
	}

	var buf bytes.Buffer
	out, err := kvnl.NewDumpStream(&buf, opts...)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	for i, b := range req.Blocks {
		lines, unhashed, err := b.Convert()
		if err == nil {
			err = out.Dump(lines, unhashed)
		}
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, fmt.Errorf("block %d: %w", i, err))
			return
		}
		s.logBlock(r, "encode", i, algorithm, out.Encoder().Hash(), lines, unhashed)
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *server) logBlock(r *http.Request, op string, index int, algorithm string, h kvnl.Hash, lines, unhashed []kvnl.Line) {
	event := &BlockEvent{
		Timestamp: time.Now(),
		RequestID: middleware.GetReqID(r.Context()),
		Operation: op,
		Index:     index,
		Algorithm: algorithm,
		Lines:     lines,
		Unhashed:  unhashed,
	}
	if h != nil {
		event.Digest = h.HexDigest()
	}
	if err := s.blocks.LogBlock(r.Context(), event); err != nil {
		s.log.Warn("block logger failed", "error", err)
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.log.Debug("request failed", "path", r.URL.Path, "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

// statusFor maps decode errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, kvnl.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, kvnl.ErrCorruption):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
