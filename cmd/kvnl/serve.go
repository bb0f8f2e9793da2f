package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cuelang.org/go/cue"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/epithet-ssh/kvnl/pkg/config"
	"github.com/epithet-ssh/kvnl/pkg/kvnlhttp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerFlags are shared by every command that runs the HTTP service.
type ServerFlags struct {
	MaxSize       int    `help:"Maximum field length in bytes (default 64MB)"`
	BodyLimit     int64  `help:"Maximum request body in bytes" default:"8388608"`
	OIDCIssuer    string `name:"oidc-issuer" help:"Require ID tokens from this OIDC issuer" env:"OIDC_ISSUER"`
	OIDCAudience  string `name:"oidc-audience" help:"Expected audience of ID tokens" env:"OIDC_AUDIENCE"`
	ArchiveBucket string `help:"S3 bucket every block is archived to (optional)" env:"ARCHIVE_BUCKET"`
	ArchivePrefix string `help:"S3 key prefix for archived blocks" env:"ARCHIVE_PREFIX"`
}

// merge fills unset flags from the config files.
func (f ServerFlags) merge(cfg *config.CLI) ServerFlags {
	if f.MaxSize == 0 {
		f.MaxSize = cfg.MaxSize
	}
	f.OIDCIssuer = firstNonEmpty(f.OIDCIssuer, cfg.OIDC.Issuer)
	f.OIDCAudience = firstNonEmpty(f.OIDCAudience, cfg.OIDC.Audience)
	f.ArchiveBucket = firstNonEmpty(f.ArchiveBucket, cfg.Archive.Bucket)
	f.ArchivePrefix = firstNonEmpty(f.ArchivePrefix, cfg.Archive.Prefix, "blocks")
	return f
}

// handler builds the service handler. The returned function flushes the
// block archive and must be called on shutdown.
func (f ServerFlags) handler(ctx context.Context, logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig) (http.Handler, func(), error) {
	opts := []kvnlhttp.Option{kvnlhttp.WithBodyLimit(f.BodyLimit)}
	if f.MaxSize > 0 {
		opts = append(opts, kvnlhttp.WithMaxSize(f.MaxSize))
	}

	if f.OIDCIssuer != "" {
		v, err := kvnlhttp.NewValidator(ctx, kvnlhttp.AuthConfig{
			Issuer:   f.OIDCIssuer,
			Audience: f.OIDCAudience,
			TLS:      tlsCfg,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, kvnlhttp.WithValidator(v))
		logger.Info("token validation enabled", "issuer", f.OIDCIssuer, "audience", f.OIDCAudience)
	}

	blocks, shutdown, err := f.blockLogger(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, kvnlhttp.WithBlockLogger(blocks))

	return kvnlhttp.New(logger, opts...), shutdown, nil
}

// blockLogger logs every block, and archives it to S3 when a bucket is set.
func (f ServerFlags) blockLogger(ctx context.Context, logger *slog.Logger) (kvnlhttp.BlockLogger, func(), error) {
	slogLogger := kvnlhttp.NewSlogBlockLogger(logger)

	if f.ArchiveBucket == "" {
		logger.Info("block archival disabled (no S3 bucket configured)")
		return slogLogger, func() {}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	archiver := kvnlhttp.NewS3BlockArchiver(kvnlhttp.S3ArchiverConfig{
		Client:     s3.NewFromConfig(awsCfg),
		Bucket:     f.ArchiveBucket,
		KeyPrefix:  f.ArchivePrefix,
		Logger:     logger,
		BufferSize: 100,
	})
	logger.Info("block archival enabled", "bucket", f.ArchiveBucket, "prefix", f.ArchivePrefix)

	shutdown := func() {
		if err := archiver.Shutdown(10 * time.Second); err != nil {
			logger.Error("block archiver shutdown", "error", err)
		}
	}
	return kvnlhttp.NewMultiBlockLogger(slogLogger, archiver), shutdown, nil
}

type ServeCLI struct {
	ServerFlags `embed:""`
	Listen      string `help:"Address to listen on" short:"l" env:"PORT"`
}

func (s *ServeCLI) Run(logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, unifiedConfig cue.Value) error {
	cfg, err := defaults(unifiedConfig)
	if err != nil {
		return err
	}
	flags := s.ServerFlags.merge(cfg)
	listen := firstNonEmpty(s.Listen, cfg.Listen, ":8080")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, shutdown, err := flags.handler(ctx, logger, tlsCfg)
	if err != nil {
		return err
	}
	defer shutdown()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Mount("/", handler)

	srv := &http.Server{Addr: listen, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
