package kvnl

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_Simple(t *testing.T) {
	line, err := NewLineReader(strings.NewReader("key=value\n")).Poll()
	require.NoError(t, err)
	assert.Equal(t, Line{Key: "key", Value: []byte("value")}, line)
}

func TestLineReader_Sized(t *testing.T) {
	line, err := NewLineReader(strings.NewReader("name:15=multi\nline\ndata\n")).Poll()
	require.NoError(t, err)
	assert.Equal(t, "name", line.Key)
	assert.Equal(t, "multi\nline\ndata", string(line.Value))
}

func TestLineReader_Blank(t *testing.T) {
	line, err := NewLineReader(strings.NewReader("\n")).Poll()
	require.NoError(t, err)
	assert.True(t, line.Blank)
}

func TestLineReader_EmptyValue(t *testing.T) {
	line, err := NewLineReader(strings.NewReader("key=\n")).Poll()
	require.NoError(t, err)
	assert.Equal(t, "key", line.Key)
	assert.Empty(t, line.Value)
	assert.False(t, line.Blank)
}

func TestLineReader_EOF(t *testing.T) {
	_, err := NewLineReader(strings.NewReader("")).Poll()
	assert.Equal(t, io.EOF, err)

	_, err = NewLineReader(strings.NewReader("key")).Poll()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewLineReader(strings.NewReader("key=val")).Poll()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestLineReader_MalformedSpecification(t *testing.T) {
	_, err := NewLineReader(strings.NewReader("a\n=")).Poll()
	require.ErrorIs(t, err, ErrMalformedSpecification)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestLineReader_BadSize(t *testing.T) {
	_, err := NewLineReader(strings.NewReader("key:-1=x\n")).Poll()
	require.ErrorIs(t, err, ErrInvalidSize)

	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, int64(7), formatErr.Offset)
}

func TestLineReader_NonASCIISpec(t *testing.T) {
	_, err := NewLineReader(strings.NewReader("k\xe9y=x\n")).Poll()
	assert.ErrorIs(t, err, ErrDecode)
}

func TestLineReader_HashesWireBytes(t *testing.T) {
	h := md5Hash(t)
	line, err := NewLineReader(strings.NewReader("name=data\n"), WithHash(h)).Poll()
	require.NoError(t, err)
	assert.Equal(t, "data", string(line.Value))
	assert.Equal(t, "ef41daf35fdb78acaa57d166c1b0bb30", h.HexDigest())
}

func TestLineReader_ChecksHashLine(t *testing.T) {
	h := md5Hash(t)
	src := strings.NewReader("name=data\nmd5=ef41daf35fdb78acaa57d166c1b0bb30\n")

	_, err := NewLineReader(src, WithHash(h)).Poll()
	require.NoError(t, err)

	line, err := NewLineReader(src, WithHash(h)).Poll()
	require.NoError(t, err)
	assert.Equal(t, Line{Key: "md5", Value: []byte("ef41daf35fdb78acaa57d166c1b0bb30")}, line)

	// The hash line is not hashed into itself.
	assert.Equal(t, "ef41daf35fdb78acaa57d166c1b0bb30", h.HexDigest())
}

func TestLineReader_HashMismatch(t *testing.T) {
	h := md5Hash(t)
	src := asSource(strings.NewReader("name=data\nmd5=ef41daf35fdb78acaa57d166c1b0bb39\n"))

	_, err := NewLineReader(src, WithHash(h)).Poll()
	require.NoError(t, err)

	_, err = NewLineReader(src, WithHash(h)).Poll()
	require.ErrorIs(t, err, ErrHashMismatch)

	var mismatch *HashMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "md5", mismatch.Algorithm)
	assert.Equal(t, "ef41daf35fdb78acaa57d166c1b0bb39", mismatch.Expected)
	assert.Equal(t, "ef41daf35fdb78acaa57d166c1b0bb30", mismatch.Actual)
	assert.Equal(t, int64(10), mismatch.Offset)
}

func TestLineReader_SizedHashLine(t *testing.T) {
	h := md5Hash(t)
	src := strings.NewReader("name=data\nmd5:32=ef41daf35fdb78acaa57d166c1b0bb30\n")
	_, err := NewLineReader(src, WithHash(h)).Poll()
	require.NoError(t, err)
	_, err = NewLineReader(src, WithHash(h)).Poll()
	require.NoError(t, err)
}

func TestLineReader_OneByteAtATime(t *testing.T) {
	lr := NewLineReader(newStutterReader("key=value\n", 1))
	line, blocks, err := drive(t, lr.Poll)
	require.NoError(t, err)
	assert.Equal(t, Line{Key: "key", Value: []byte("value")}, line)
	assert.Equal(t, len("key=value\n"), blocks)
}

func TestLineReader_ErrorIsSticky(t *testing.T) {
	lr := NewLineReader(strings.NewReader("a\n=x\n"))
	_, err := lr.Poll()
	require.Error(t, err)
	_, again := lr.Poll()
	assert.Equal(t, err, again)
}
