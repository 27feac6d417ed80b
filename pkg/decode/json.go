package decode

import (
	"bufio"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

type jsonMode int

const (
	modeUnknown jsonMode = iota
	modeArray
	modeStream
)

// JSONReader decodes either a top-level array of objects or a stream of
// concatenated (typically newline-delimited) objects.
type JSONReader struct {
	buf     *bufio.Reader
	decoder *gojson.Decoder
	mode    jsonMode
	index   int
	sticky
}

// NewJSON creates a JSON decoder over r
func NewJSON(r io.Reader) *JSONReader {
	buf := bufio.NewReader(r)
	return &JSONReader{
		buf:     buf,
		decoder: gojson.NewDecoder(buf),
	}
}

// Next returns the next object
func (j *JSONReader) Next() (Record, error) {
	if j.err != nil {
		return nil, j.err
	}

	if j.mode == modeUnknown {
		if err := j.start(); err != nil {
			return nil, j.fail(err)
		}
	}

	switch j.mode {
	case modeArray:
		if !j.decoder.More() {
			token, err := j.decoder.Token()
			if err != nil {
				return nil, j.fail(j.wrap(err, "failed to read end of JSON array"))
			}
			if delim, ok := token.(gojson.Delim); !ok || delim != ']' {
				return nil, j.fail(errors.New(errors.ErrorTypeDecode, "expected end of JSON array"))
			}
			if err := j.trailing(); err != nil {
				return nil, j.fail(err)
			}
			return nil, j.fail(io.EOF)
		}
		return j.decodeOne()
	default:
		rec, err := j.decodeOne()
		if err == io.EOF {
			return nil, j.fail(io.EOF)
		}
		return rec, err
	}
}

// start peeks the first significant byte to pick array or stream mode
func (j *JSONReader) start() error {
	for {
		b, err := j.buf.Peek(1)
		if err == io.EOF {
			j.mode = modeStream
			return nil
		}
		if err != nil {
			return j.wrap(err, "failed to read JSON stream")
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = j.buf.ReadByte()
			continue
		case '[':
			if _, err := j.decoder.Token(); err != nil {
				return j.wrap(err, "failed to read start of JSON array")
			}
			j.mode = modeArray
			return nil
		default:
			j.mode = modeStream
			return nil
		}
	}
}

// trailing fails unless only whitespace follows the closing bracket
func (j *JSONReader) trailing() error {
	rest := bufio.NewReader(io.MultiReader(j.decoder.Buffered(), j.buf))
	for {
		b, err := rest.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return j.wrap(err, "failed to read after JSON array")
		}
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			return errors.New(errors.ErrorTypeDecode, "unexpected data after JSON array").
				WithDetail("format", string(FormatJSON))
		}
	}
}

func (j *JSONReader) decodeOne() (Record, error) {
	var rec Record
	if err := j.decoder.Decode(&rec); err != nil {
		if err == io.EOF && j.mode == modeStream {
			return nil, io.EOF
		}
		return nil, j.fail(j.wrap(err, "malformed JSON record"))
	}
	if rec == nil {
		return nil, j.fail(errors.Newf(errors.ErrorTypeDecode, "JSON record %d is not an object", j.index).
			WithDetail("format", string(FormatJSON)))
	}
	j.index++
	return rec, nil
}

func (j *JSONReader) wrap(err error, msg string) error {
	return errors.Wrap(err, errors.ErrorTypeDecode, msg).
		WithDetail("format", string(FormatJSON)).
		WithDetail("record", j.index)
}
