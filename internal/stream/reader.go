// Package stream assembles an assistant message from a chunked completion body.
package stream

import (
	"context"
	"io"
	"unicode/utf8"
)

const defaultChunkSize = 4096

// ChunkReader yields decoded text chunks in arrival order. Next returns
// io.EOF once the input ended normally; any other error means the stream
// was interrupted.
type ChunkReader interface {
	Next(ctx context.Context) (string, error)
}

type byteReader struct {
	r       io.Reader
	buf     []byte
	pending []byte
	err     error
}

// NewReader decodes r as UTF-8. A multi-byte character split across reads is
// held back until its remaining bytes arrive.
func NewReader(r io.Reader, chunkSize int) ChunkReader {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &byteReader{r: r, buf: make([]byte, chunkSize)}
}

func (b *byteReader) Next(ctx context.Context) (string, error) {
	for {
		if b.err != nil {
			return "", b.err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := b.r.Read(b.buf)
		text := ""
		if n > 0 {
			data := append(b.pending, b.buf[:n]...)
			cut := completePrefix(data)
			text = string(data[:cut])
			b.pending = append([]byte(nil), data[cut:]...)
		}
		if err != nil {
			if err == io.EOF && len(b.pending) > 0 {
				text += string(b.pending)
				b.pending = nil
			}
			b.err = err
		}
		if text != "" {
			return text, nil
		}
	}
}

// completePrefix returns the length of the longest prefix of data that does
// not end inside a multi-byte UTF-8 sequence.
func completePrefix(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return len(data)
		}
		return i
	}
	return len(data)
}
