package kvnl

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sealedMD5 = "a=hello\nc=world\nmd5=c5133712016d519e3b899e1db0fe7652\n\n"

func readBlock(t *testing.T, br *BlockReader) ([]Line, error) {
	t.Helper()
	var lines []Line
	for {
		line, err := br.Poll()
		if err == ErrWouldBlock {
			continue
		}
		if err != nil {
			return lines, err
		}
		if line.Blank {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

func TestBlockReader_Sealed(t *testing.T) {
	br := NewBlockReader(strings.NewReader(sealedMD5), WithHash(md5Hash(t)))
	lines, err := readBlock(t, br)
	require.NoError(t, err)
	assert.Equal(t, []Line{
		{Key: "a", Value: []byte("hello")},
		{Key: "c", Value: []byte("world")},
	}, lines)
	assert.True(t, br.Sealed())

	// The end of the block is sticky.
	line, err := br.Poll()
	require.NoError(t, err)
	assert.True(t, line.Blank)
}

func TestBlockReader_IncludeHash(t *testing.T) {
	br := NewBlockReader(strings.NewReader(sealedMD5), WithHash(md5Hash(t)), IncludeHash())
	lines, err := readBlock(t, br)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, Line{Key: "md5", Value: []byte("c5133712016d519e3b899e1db0fe7652")}, lines[2])
}

func TestBlockReader_CorruptDigest(t *testing.T) {
	data := strings.Replace(sealedMD5, "7652", "7653", 1)
	_, err := readBlock(t, NewBlockReader(strings.NewReader(data), WithHash(md5Hash(t))))
	require.ErrorIs(t, err, ErrHashMismatch)
	require.ErrorIs(t, err, ErrCorruption)

	var mismatch *HashMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "c5133712016d519e3b899e1db0fe7652", mismatch.Actual)
	assert.Equal(t, int64(len("a=hello\nc=world\n")), mismatch.Offset)
}

func TestBlockReader_CorruptValue(t *testing.T) {
	data := strings.Replace(sealedMD5, "hello", "jello", 1)
	_, err := readBlock(t, NewBlockReader(strings.NewReader(data), WithHash(md5Hash(t))))
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestBlockReader_UnhashedLines(t *testing.T) {
	data := "a=hello\nc=world\nmd5=c5133712016d519e3b899e1db0fe7652\nsig=anything\n\n"
	h := md5Hash(t)
	lines, err := readBlock(t, NewBlockReader(strings.NewReader(data), WithHash(h)))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "sig", lines[2].Key)
	assert.Equal(t, "c5133712016d519e3b899e1db0fe7652", h.HexDigest())
}

func TestBlockReader_Unsealed(t *testing.T) {
	// Without a hash line nothing is checked.
	br := NewBlockReader(strings.NewReader("a=hello\n\n"), WithHash(md5Hash(t)))
	lines, err := readBlock(t, br)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.False(t, br.Sealed())
}

func TestBlockReader_NoHash(t *testing.T) {
	// With no hash configured, a line named like an algorithm is ordinary data.
	lines, err := readBlock(t, NewBlockReader(strings.NewReader("md5=whatever\n\n")))
	require.NoError(t, err)
	assert.Equal(t, []Line{{Key: "md5", Value: []byte("whatever")}}, lines)
}

func TestBlockReader_Empty(t *testing.T) {
	lines, err := readBlock(t, NewBlockReader(strings.NewReader("\n")))
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestBlockReader_EOF(t *testing.T) {
	_, err := readBlock(t, NewBlockReader(strings.NewReader("")))
	assert.Equal(t, io.EOF, err)

	_, err = readBlock(t, NewBlockReader(strings.NewReader("a=hello\n")))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, int64(8), formatErr.Offset)
}

func TestBlockReader_WouldBlock(t *testing.T) {
	br := NewBlockReader(newStutterReader(sealedMD5, 2), WithHash(md5Hash(t)))
	blocks := 0
	var lines []Line
	for {
		line, err := br.Poll()
		if err == ErrWouldBlock {
			blocks++
			continue
		}
		require.NoError(t, err)
		if line.Blank {
			break
		}
		lines = append(lines, line)
	}
	assert.Len(t, lines, 2)
	assert.Positive(t, blocks)
}
