// Package decode turns a byte stream into a lazy sequence of records.
//
// Decoders are pull-based: nothing is read from the underlying stream until
// Next is called, and each call reads only as much as one record needs.
// A decoder is finite and not restartable; once Next returns an error it
// keeps returning that error.
package decode

import (
	"io"
	"strings"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

// Record is one decoded value. Its identity is its position in the stream.
type Record = map[string]any

// Format identifies a record encoding
type Format string

const (
	// FormatCSV is comma-delimited text with a header row
	FormatCSV Format = "csv"
	// FormatJSON is a JSON array of objects or a stream of objects
	FormatJSON Format = "json"
)

// RecordReader yields records one at a time. Next returns io.EOF after
// the last record.
type RecordReader interface {
	Next() (Record, error)
}

// ParseFormat validates a format tag
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", errors.Newf(errors.ErrorTypeInvalidInput, "unsupported format %q", s).
			WithDetail("format", s)
	}
}

// New returns the decoder for format reading from r
func New(format Format, r io.Reader) (RecordReader, error) {
	switch format {
	case FormatCSV:
		return NewCSV(r), nil
	case FormatJSON:
		return NewJSON(r), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeInvalidInput, "unsupported format %q", format)
	}
}

// ReadAll drains rd. Intended for tests and small resources.
func ReadAll(rd RecordReader) ([]Record, error) {
	var out []Record
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// sticky remembers the first terminal error of a decoder
type sticky struct {
	err error
}

func (s *sticky) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return s.err
}
