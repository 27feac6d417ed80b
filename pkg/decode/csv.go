package decode

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

const utf8BOM = "\ufeff"

// CSVReader decodes comma-delimited records. The first row is the header
// and names the fields of every later row. Quotes are RFC 4180: `"` both
// encloses a field and escapes itself.
type CSVReader struct {
	reader *csv.Reader
	header []string
	sticky
}

// NewCSV creates a CSV decoder over r
func NewCSV(r io.Reader) *CSVReader {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	return &CSVReader{reader: reader}
}

// Header returns the header row once the first record has been read
func (c *CSVReader) Header() []string {
	return c.header
}

// Next returns the next row as a record keyed by header names
func (c *CSVReader) Next() (Record, error) {
	if c.err != nil {
		return nil, c.err
	}

	if c.header == nil {
		row, err := c.reader.Read()
		if err == io.EOF {
			return nil, c.fail(io.EOF)
		}
		if err != nil {
			return nil, c.fail(c.wrap(err, "failed to read CSV header"))
		}
		c.header = make([]string, len(row))
		copy(c.header, row)
		c.header[0] = strings.TrimPrefix(c.header[0], utf8BOM)
	}

	row, err := c.reader.Read()
	if err == io.EOF {
		return nil, c.fail(io.EOF)
	}
	if err != nil {
		return nil, c.fail(c.wrap(err, "malformed CSV row"))
	}

	rec := make(Record, len(c.header))
	for i, name := range c.header {
		rec[name] = row[i]
	}
	return rec, nil
}

func (c *CSVReader) wrap(err error, msg string) error {
	e := errors.Wrap(err, errors.ErrorTypeDecode, msg).WithDetail("format", string(FormatCSV))
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		e = e.WithDetail("line", perr.Line)
	}
	return e
}
