package kvnlhttp

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/epithet-ssh/kvnl/pkg/kvnl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedObject struct {
	key      string
	body     []byte
	metadata map[string]string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects []storedObject
	block   chan struct{}
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.block != nil {
		<-f.block
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.objects = append(f.objects, storedObject{key: aws.ToString(params.Key), body: body, metadata: params.Metadata})
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) stored() []storedObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storedObject(nil), f.objects...)
}

func testEvent(index int) *BlockEvent {
	return &BlockEvent{
		Timestamp: time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC),
		RequestID: "host/abc-000001",
		Operation: "decode",
		Index:     index,
		Algorithm: "md5",
		Digest:    "c5133712016d519e3b899e1db0fe7652",
		Lines: []kvnl.Line{
			{Key: "a", Value: []byte("hello")},
			{Key: "c", Value: []byte("world")},
		},
	}
}

func TestS3BlockArchiver_Writes(t *testing.T) {
	client := &fakeS3{}
	a := NewS3BlockArchiver(S3ArchiverConfig{
		Client:    client,
		Bucket:    "archive",
		KeyPrefix: "blocks",
		Logger:    testLogger(t),
	})

	require.NoError(t, a.LogBlock(context.Background(), testEvent(0)))
	require.NoError(t, a.LogBlock(context.Background(), testEvent(1)))
	require.NoError(t, a.Shutdown(5*time.Second))

	objects := client.stored()
	require.Len(t, objects, 2)
	assert.Equal(t, "blocks/year=2026/month=03/day=07/host-abc-000001-0.kvnl", objects[0].key)
	assert.Equal(t, "blocks/year=2026/month=03/day=07/host-abc-000001-1.kvnl", objects[1].key)
	assert.Equal(t, sealedMD5, string(objects[0].body))
	assert.Equal(t, map[string]string{
		"operation": "decode",
		"algorithm": "md5",
		"digest":    "c5133712016d519e3b899e1db0fe7652",
	}, objects[0].metadata)
}

func TestS3BlockArchiver_UnsealedBlock(t *testing.T) {
	client := &fakeS3{}
	a := NewS3BlockArchiver(S3ArchiverConfig{Client: client, Bucket: "archive", Logger: testLogger(t)})

	event := testEvent(0)
	event.Algorithm = ""
	event.Digest = ""
	require.NoError(t, a.LogBlock(context.Background(), event))
	require.NoError(t, a.Shutdown(5*time.Second))

	objects := client.stored()
	require.Len(t, objects, 1)
	assert.Equal(t, "year=2026/month=03/day=07/host-abc-000001-0.kvnl", objects[0].key)
	assert.Equal(t, "a=hello\nc=world\n\n", string(objects[0].body))
}

func TestS3BlockArchiver_BufferFull(t *testing.T) {
	client := &fakeS3{block: make(chan struct{})}
	a := NewS3BlockArchiver(S3ArchiverConfig{
		Client:     client,
		Bucket:     "archive",
		Logger:     testLogger(t),
		BufferSize: 1,
	})

	// The writer holds at most one event in PutObject and one in the
	// buffer, so some of these must be dropped.
	var dropped int
	for i := range 5 {
		if err := a.LogBlock(context.Background(), testEvent(i)); err != nil {
			dropped++
		}
	}
	assert.GreaterOrEqual(t, dropped, 3)

	close(client.block)
	require.NoError(t, a.Shutdown(5*time.Second))
	assert.Len(t, client.stored(), 5-dropped)
}

func TestS3BlockArchiver_ShutdownTimeout(t *testing.T) {
	client := &fakeS3{block: make(chan struct{})}
	defer close(client.block)
	a := NewS3BlockArchiver(S3ArchiverConfig{Client: client, Bucket: "archive", Logger: testLogger(t)})

	require.NoError(t, a.LogBlock(context.Background(), testEvent(0)))
	assert.Error(t, a.Shutdown(50*time.Millisecond))
}

func TestS3BlockArchiver_PutError(t *testing.T) {
	client := &fakeS3{err: errors.New("access denied")}
	a := NewS3BlockArchiver(S3ArchiverConfig{Client: client, Bucket: "archive", Logger: testLogger(t)})

	require.NoError(t, a.LogBlock(context.Background(), testEvent(0)))
	require.NoError(t, a.Shutdown(5*time.Second))
	assert.Empty(t, client.stored())
}

func TestMultiBlockLogger(t *testing.T) {
	first := &recordingLogger{}
	second := &recordingLogger{err: errors.New("second failed")}
	third := &recordingLogger{}

	m := NewMultiBlockLogger(first, second, third, NoopBlockLogger{}, NewSlogBlockLogger(testLogger(t)))
	err := m.LogBlock(context.Background(), testEvent(0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "second failed")
	assert.Len(t, first.all(), 1)
	assert.Len(t, second.all(), 1)
	assert.Len(t, third.all(), 1)

	assert.NoError(t, NewMultiBlockLogger().LogBlock(context.Background(), testEvent(0)))
}
