package clients

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/testutil"
)

func TestHTTPClient_Fetch(t *testing.T) {
	srv := testutil.NewResourceServer(t, http.StatusOK,
		http.Header{"Content-Type": {"text/csv"}}, []byte(testutil.CSV(2)))

	client := NewHTTPClient(nil, testutil.TestLogger(t))
	defer client.Close()

	resp, err := client.Fetch(context.Background(), srv.URL+"/export.csv")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testutil.CSV(2), string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), srv.Hits())
	assert.Equal(t, int64(1), client.GetStats().TotalRequests)
}

func TestHTTPClient_ContentEncodingPassedThrough(t *testing.T) {
	srv := testutil.NewResourceServer(t, http.StatusOK,
		http.Header{"Content-Encoding": {"gzip"}}, []byte{0x1f, 0x8b})

	client := NewHTTPClient(nil, testutil.TestLogger(t))
	resp, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.ContentEncoding())
}

func TestHTTPClient_NonSuccessStatus(t *testing.T) {
	srv := testutil.NewResourceServer(t, http.StatusForbidden, nil, []byte("denied"))

	client := NewHTTPClient(nil, testutil.TestLogger(t))
	_, err := client.Fetch(context.Background(), srv.URL+"/export.csv?sig=secret")
	require.Error(t, err)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errors.ErrorTypeTransport, e.Type)
	assert.Equal(t, http.StatusForbidden, e.Details["status_code"])
	assert.NotContains(t, e.Details["url"], "secret")
	assert.Equal(t, int64(1), client.GetStats().FailedRequests)
}

func TestHTTPClient_ConnectionRefused(t *testing.T) {
	cfg := DefaultHTTPConfig()
	cfg.DialTimeout = time.Second
	client := NewHTTPClient(cfg, testutil.TestLogger(t))

	_, err := client.Fetch(context.Background(), "http://127.0.0.1:1/export.csv")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.True(t, errors.IsRetryable(err))
}

func TestHTTPClient_RateLimitCancelled(t *testing.T) {
	srv := testutil.NewResourceServer(t, http.StatusOK, nil, nil)

	cfg := DefaultHTTPConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	client := NewHTTPClient(cfg, testutil.TestLogger(t))

	resp, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, int64(1), srv.Hits())
}

func TestSchemeFetcher(t *testing.T) {
	var got string
	fake := FetcherFunc(func(_ context.Context, rawURL string) (*Response, error) {
		got = rawURL
		return &Response{URL: rawURL, StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	router := NewSchemeFetcher(fake)
	router.Register("S3", fake)
	assert.ElementsMatch(t, []string{"http", "https", "s3"}, router.Schemes())

	_, err := router.Fetch(context.Background(), "s3://bucket/key.csv")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/key.csv", got)

	_, err = router.Fetch(context.Background(), "ftp://host/file.csv")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidInput))
}

func TestSplitBucketURL(t *testing.T) {
	bucket, key, err := splitBucketURL("s3://exports/2024/users.csv.gz", "s3")
	require.NoError(t, err)
	assert.Equal(t, "exports", bucket)
	assert.Equal(t, "2024/users.csv.gz", key)

	_, _, err = splitBucketURL("s3://exports/", "s3")
	assert.Error(t, err)

	_, _, err = splitBucketURL("gs://exports/users.csv", "s3")
	assert.Error(t, err)
}

type fakeS3 struct {
	input *s3.GetObjectInput
	out   *s3.GetObjectOutput
	err   error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestS3Fetcher(t *testing.T) {
	fake := &fakeS3{out: &s3.GetObjectOutput{
		Body:            io.NopCloser(strings.NewReader("id\n1\n")),
		ContentType:     aws.String("text/csv"),
		ContentEncoding: aws.String("gzip"),
		ContentLength:   aws.Int64(5),
	}}

	resp, err := NewS3FetcherWithClient(fake).Fetch(context.Background(), "s3://exports/users.csv")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "exports", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "users.csv", aws.ToString(fake.input.Key))
	assert.Equal(t, "gzip", resp.ContentEncoding())
	assert.Equal(t, int64(5), resp.ContentLength)
}

func TestS3Fetcher_NoSuchKey(t *testing.T) {
	fake := &fakeS3{err: &types.NoSuchKey{}}

	_, err := NewS3FetcherWithClient(fake).Fetch(context.Background(), "s3://exports/missing.csv")
	require.Error(t, err)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusNotFound, e.Details["status_code"])
}

func TestGCSFetcher(t *testing.T) {
	open := func(_ context.Context, bucket, object string) (io.ReadCloser, storage.ReaderObjectAttrs, error) {
		assert.Equal(t, "exports", bucket)
		assert.Equal(t, "users.json", object)
		return io.NopCloser(bytes.NewReader([]byte("[]"))), storage.ReaderObjectAttrs{
			ContentType:     "application/json",
			ContentEncoding: "gzip",
			Decompressed:    true,
			Size:            2,
		}, nil
	}

	resp, err := NewGCSFetcherWithOpener(open).Fetch(context.Background(), "gs://exports/users.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.ContentEncoding(), "transcoded objects must not be decompressed twice")
	assert.Equal(t, int64(2), resp.ContentLength)
}

func TestGCSFetcher_NotFound(t *testing.T) {
	open := func(context.Context, string, string) (io.ReadCloser, storage.ReaderObjectAttrs, error) {
		return nil, storage.ReaderObjectAttrs{}, storage.ErrObjectNotExist
	}

	_, err := NewGCSFetcherWithOpener(open).Fetch(context.Background(), "gs://exports/missing.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrObjectNotExist))
}
