// Package kvnl implements encoding and decoding of KVNL streams.
//
// KVNL is a plain-ASCII, line-oriented key/value format. Each line is a
// specification, an equals sign, a value and a newline:
//
//	key=value\n
//	key:size=value\n
//
// The first form reads the value up to the next newline. The second declares the
// value length in bytes, so the value may contain newlines or arbitrary binary
// data. A blank line ends a block:
//
//	a=hello
//	c=world
//	md5=c5133712016d519e3b899e1db0fe7652
//
// When a hash algorithm is active, the line whose key is the algorithm name
// carries the hex digest of every byte of the block before it. Decoding checks
// it and, by default, does not return it. Lines after the hash line are not
// covered by the digest.
//
// # Non-blocking sources
//
// Every decoding operation is an explicit state object with a Poll method. When
// the underlying reader has no data yet (it returns ErrWouldBlock,
// syscall.EAGAIN, or zero bytes with a nil error), Poll returns ErrWouldBlock and
// keeps everything read so far. Calling Poll again continues where it stopped:
//
//	lr := kvnl.NewLineReader(conn)
//	for {
//		line, err := lr.Poll()
//		if errors.Is(err, kvnl.ErrWouldBlock) {
//			waitReadable(conn)
//			continue
//		}
//		...
//	}
//
// Decoder, Encoder and Stream bind these operations to a reader, a writer and
// an optional hash. A Decoder method that returned ErrWouldBlock must be called
// again before any other decoding method.
//
// # Basic Usage
//
// Encoding:
//
//	enc := kvnl.NewEncoder(&buf, kvnl.HashAlgorithm("md5"))
//	enc.EncodeBlock([]kvnl.Line{{Key: "a", Value: []byte("hello")}}, nil)
//
// Decoding:
//
//	dec := kvnl.NewDecoder(bytes.NewReader(data), kvnl.HashAlgorithm("md5"))
//	lines, err := dec.DecodeBlock()
//
// Decoders use no lookahead: delimited fields are read one byte at a time, so
// the reader is never advanced past the end of the current line. Wrap slow
// readers in bufio.Reader when that matters.
package kvnl
