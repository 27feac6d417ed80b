// Package compression provides streaming compression support for conduit.
//
// Extraction resources are frequently published compressed, either declared
// through Content-Encoding or implied by the file extension (.gz, .zst, ...).
// NewReader wraps a response body so the record decoder always sees plain
// bytes; NewWriter is the inverse, used when writing extracted records.
//
// # Basic Usage
//
//	alg := compression.Detect(resp.Header.Get("Content-Encoding"), url)
//	r, err := compression.NewReader(alg, resp.Body)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
// # Supported Algorithms
//
//   - Gzip and Deflate: klauspost/compress drop-in replacements
//   - Zstd: klauspost/compress/zstd
//   - Snappy: framed snappy stream format
//   - LZ4: pierrec/lz4 frame format
package compression

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
)

// extensions maps file suffixes to algorithms
var extensions = map[string]Algorithm{
	".gz":     Gzip,
	".gzip":   Gzip,
	".zst":    Zstd,
	".zstd":   Zstd,
	".sz":     Snappy,
	".snappy": Snappy,
	".lz4":    LZ4,
}

// ParseAlgorithm converts a Content-Encoding token or algorithm name.
// Unknown names return an error; the empty string and "identity" are None.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "identity":
		return None, nil
	case "gzip", "x-gzip":
		return Gzip, nil
	case "deflate":
		return Deflate, nil
	case "zstd":
		return Zstd, nil
	case "snappy", "x-snappy-framed":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Detect picks the algorithm for a resource. A declared Content-Encoding
// wins; otherwise the URL path extension is consulted. Unknown encodings
// fall back to None so the decoder reports the real problem.
func Detect(contentEncoding, rawURL string) Algorithm {
	if contentEncoding != "" {
		if alg, err := ParseAlgorithm(contentEncoding); err == nil {
			return alg
		}
		return None
	}
	return FromPath(rawURL)
}

// FromPath returns the algorithm implied by the file extension of rawURL
func FromPath(rawURL string) Algorithm {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if alg, ok := extensions[strings.ToLower(path.Ext(p))]; ok {
		return alg
	}
	return None
}

// NewReader returns a reader that decompresses r. Closing it releases the
// decompressor only; r stays owned by the caller.
func NewReader(alg Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gr, nil
	case Deflate:
		return flate.NewReader(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// NewWriter returns a writer that compresses into w. Close flushes the
// trailer but does not close w.
func NewWriter(alg Algorithm, w io.Writer) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Deflate:
		return flate.NewWriter(w, flate.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(w)
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
