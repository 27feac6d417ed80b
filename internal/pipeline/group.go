package pipeline

import (
	"io"

	"github.com/ajitpratap0/conduit/pkg/decode"
	"github.com/ajitpratap0/conduit/pkg/errors"
)

// Chunk is an ordered group of at most size records. It is never empty.
type Chunk []decode.Record

// ChunkReader yields chunks one at a time. Next returns io.EOF after the
// last chunk.
type ChunkReader interface {
	Next() (Chunk, error)
}

// Grouper regroups a record sequence into fixed-size chunks.
type Grouper struct {
	src  decode.RecordReader
	size int
	err  error
}

// Group returns a Grouper producing chunks of exactly size records from
// src, except the last which holds the remainder.
func Group(src decode.RecordReader, size int) (*Grouper, error) {
	if size <= 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "batch size must be positive, got %d", size).
			WithDetail("batch_size", size)
	}
	return &Grouper{src: src, size: size}, nil
}

// Next reads up to size records from the source. A source error ends the
// sequence: records buffered before it are discarded and the error is
// returned from every later call.
func (g *Grouper) Next() (Chunk, error) {
	if g.err != nil {
		return nil, g.err
	}

	chunk := make(Chunk, 0, g.size)
	for len(chunk) < g.size {
		rec, err := g.src.Next()
		if err == io.EOF {
			g.err = io.EOF
			break
		}
		if err != nil {
			g.err = err
			return nil, err
		}
		chunk = append(chunk, rec)
	}

	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}
