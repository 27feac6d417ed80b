package clients

import (
	"context"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

// ObjectOpener opens a GCS object for reading
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, storage.ReaderObjectAttrs, error)

// GCSFetcher fetches gs://bucket/object resources
type GCSFetcher struct {
	client *storage.Client
	open   ObjectOpener
}

// NewGCSFetcher creates a fetcher backed by a storage client
func NewGCSFetcher(ctx context.Context, opts ...option.ClientOption) (*GCSFetcher, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	return &GCSFetcher{
		client: client,
		open: func(ctx context.Context, bucket, object string) (io.ReadCloser, storage.ReaderObjectAttrs, error) {
			r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
			if err != nil {
				return nil, storage.ReaderObjectAttrs{}, err
			}
			return r, r.Attrs, nil
		},
	}, nil
}

// NewGCSFetcherWithOpener creates a fetcher around a custom opener
func NewGCSFetcherWithOpener(open ObjectOpener) *GCSFetcher {
	return &GCSFetcher{open: open}
}

// Fetch streams the object body
func (f *GCSFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	bucket, object, err := splitBucketURL(rawURL, "gs")
	if err != nil {
		return nil, err
	}

	body, attrs, err := f.open(ctx, bucket, object)
	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeTransport, "failed to open GCS object").
			WithDetail("bucket", bucket).
			WithDetail("object", object)
		if errors.Is(err, storage.ErrObjectNotExist) {
			wrapped = wrapped.WithDetail("status_code", http.StatusNotFound)
		}
		return nil, wrapped
	}

	header := make(http.Header)
	if attrs.ContentType != "" {
		header.Set("Content-Type", attrs.ContentType)
	}
	// The storage reader transcodes gzip objects unless told otherwise
	if attrs.ContentEncoding != "" && !attrs.Decompressed {
		header.Set("Content-Encoding", attrs.ContentEncoding)
	}

	return &Response{
		URL:           rawURL,
		StatusCode:    http.StatusOK,
		Header:        header,
		ContentLength: attrs.Size,
		Body:          body,
	}, nil
}

// Close closes the underlying storage client
func (f *GCSFetcher) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}
