package kvnlhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/epithet-ssh/kvnl/pkg/kvnl"
)

// BlockLogger records every block the server decodes or encodes.
type BlockLogger interface {
	LogBlock(ctx context.Context, event *BlockEvent) error
}

// BlockEvent describes one block handled by the server.
type BlockEvent struct {
	Timestamp time.Time
	RequestID string
	Operation string // "decode" or "encode"
	Index     int    // position of the block in the request
	Algorithm string // hash algorithm, empty when unsealed
	Digest    string // hex digest over the hashed lines
	Lines     []kvnl.Line
	Unhashed  []kvnl.Line
}

// SlogBlockLogger logs block events using structured logging (slog).
type SlogBlockLogger struct {
	logger *slog.Logger
}

// NewSlogBlockLogger creates a block logger that emits structured logs.
func NewSlogBlockLogger(logger *slog.Logger) *SlogBlockLogger {
	return &SlogBlockLogger{logger: logger}
}

// LogBlock emits one log record per block. Values are not logged.
func (l *SlogBlockLogger) LogBlock(ctx context.Context, event *BlockEvent) error {
	keys := make([]string, 0, len(event.Lines))
	for _, line := range event.Lines {
		keys = append(keys, line.Key)
	}
	l.logger.InfoContext(ctx, "block "+event.Operation+"d",
		slog.String("request_id", event.RequestID),
		slog.Int("index", event.Index),
		slog.String("algorithm", event.Algorithm),
		slog.String("digest", event.Digest),
		slog.Any("keys", keys),
		slog.Int("unhashed", len(event.Unhashed)),
	)
	return nil
}

// MultiBlockLogger calls multiple BlockLoggers in sequence.
// Best-effort: calls all loggers and joins their errors.
type MultiBlockLogger struct {
	loggers []BlockLogger
}

// NewMultiBlockLogger creates a logger that calls multiple loggers.
func NewMultiBlockLogger(loggers ...BlockLogger) *MultiBlockLogger {
	return &MultiBlockLogger{loggers: loggers}
}

// LogBlock calls all loggers and returns a combined error if any fail.
func (m *MultiBlockLogger) LogBlock(ctx context.Context, event *BlockEvent) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.LogBlock(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopBlockLogger does nothing.
type NoopBlockLogger struct{}

// LogBlock does nothing and always returns nil.
func (NoopBlockLogger) LogBlock(context.Context, *BlockEvent) error {
	return nil
}

// PutObjectAPI is the part of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiverConfig configures the S3 block archiver.
type S3ArchiverConfig struct {
	Client     PutObjectAPI
	Bucket     string
	KeyPrefix  string       // Optional prefix for S3 keys (e.g., "blocks")
	Logger     *slog.Logger // For logging archiver errors
	BufferSize int          // Channel buffer size (default: 100)
}

// S3BlockArchiver stores every block as its own KVNL object, sealed with the
// block's algorithm, under date-partitioned keys. Writes happen in the
// background; a full buffer drops events.
type S3BlockArchiver struct {
	client    PutObjectAPI
	bucket    string
	keyPrefix string
	logger    *slog.Logger

	events chan *BlockEvent
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewS3BlockArchiver creates an archiver and starts its background writer.
func NewS3BlockArchiver(config S3ArchiverConfig) *S3BlockArchiver {
	if config.BufferSize == 0 {
		config.BufferSize = 100
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &S3BlockArchiver{
		client:    config.Client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
		logger:    config.Logger,
		events:    make(chan *BlockEvent, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.wg.Add(1)
	go a.writer()
	return a
}

// LogBlock enqueues a block for archival without blocking.
func (a *S3BlockArchiver) LogBlock(ctx context.Context, event *BlockEvent) error {
	select {
	case a.events <- event:
		return nil
	default:
		a.logger.Warn("block archiver buffer full, dropping event",
			slog.String("request_id", event.RequestID),
			slog.Int("index", event.Index))
		return fmt.Errorf("archiver buffer full")
	}
}

// Shutdown stops the archiver after writing queued events, or gives up after
// timeout.
func (a *S3BlockArchiver) Shutdown(timeout time.Duration) error {
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func (a *S3BlockArchiver) writer() {
	defer a.wg.Done()

	for {
		select {
		case event := <-a.events:
			a.write(event)
		case <-a.ctx.Done():
			for {
				select {
				case event := <-a.events:
					a.write(event)
				default:
					return
				}
			}
		}
	}
}

func (a *S3BlockArchiver) write(event *BlockEvent) {
	if err := a.writeEvent(event); err != nil {
		a.logger.Error("failed to archive block to S3",
			slog.String("request_id", event.RequestID),
			slog.Int("index", event.Index),
			slog.String("error", err.Error()))
	}
}

func (a *S3BlockArchiver) writeEvent(event *BlockEvent) error {
	var opts []kvnl.Option
	if event.Algorithm != "" {
		opts = append(opts, kvnl.HashAlgorithm(event.Algorithm))
	}
	body, err := kvnl.MarshalBlock(event.Lines, event.Unhashed, opts...)
	if err != nil {
		return fmt.Errorf("failed to encode block: %w", err)
	}

	key := a.generateKey(event)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(ContentType),
		Metadata: map[string]string{
			"operation": event.Operation,
			"algorithm": event.Algorithm,
			"digest":    event.Digest,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write to S3: %w", err)
	}

	a.logger.Debug("archived block to S3",
		slog.String("bucket", a.bucket),
		slog.String("key", key))
	return nil
}

// generateKey returns [prefix/]year=YYYY/month=MM/day=DD/<request>-<index>.kvnl.
func (a *S3BlockArchiver) generateKey(event *BlockEvent) string {
	year, month, day := event.Timestamp.UTC().Date()
	id := strings.ReplaceAll(event.RequestID, "/", "-")
	if id == "" {
		id = strconv.FormatInt(event.Timestamp.UnixNano(), 10)
	}

	key := fmt.Sprintf("year=%04d/month=%02d/day=%02d/%s-%d.kvnl", year, int(month), day, id, event.Index)
	if a.keyPrefix != "" {
		key = a.keyPrefix + "/" + key
	}
	return key
}
