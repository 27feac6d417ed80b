package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		url      string
		want     Algorithm
	}{
		{"declared gzip", "gzip", "https://example.com/export.csv", Gzip},
		{"declared wins over extension", "identity", "https://example.com/export.csv.gz", None},
		{"gzip extension", "", "https://example.com/export.csv.gz?sig=abc", Gzip},
		{"zstd extension", "", "s3://bucket/extracts/users.json.zst", Zstd},
		{"lz4 extension", "", "gs://bucket/users.json.lz4", LZ4},
		{"plain file", "", "https://example.com/export.json", None},
		{"unknown encoding", "br", "https://example.com/export.json.gz", None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.encoding, tt.url))
		})
	}
}

func TestReaderWriter_RoundTrip(t *testing.T) {
	original := strings.Repeat("id,email\n1,\"a@example.com\"\n", 200)

	for _, alg := range []Algorithm{None, Gzip, Deflate, Zstd, Snappy, LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(alg, &buf)
			require.NoError(t, err)
			_, err = io.WriteString(w, original)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := NewReader(alg, &buf)
			require.NoError(t, err)
			defer r.Close()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, original, string(got))
		})
	}
}

func TestNewReader_CorruptGzip(t *testing.T) {
	_, err := NewReader(Gzip, strings.NewReader("not gzip at all"))
	require.Error(t, err)
}

func TestParseAlgorithm_Unknown(t *testing.T) {
	_, err := ParseAlgorithm("brotli")
	require.Error(t, err)
}
