package clients

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

// S3API is the subset of the S3 client used for fetching objects
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches s3://bucket/key resources
type S3Fetcher struct {
	client S3API
}

// NewS3Fetcher builds a fetcher from the default AWS credential chain
func NewS3Fetcher(ctx context.Context, region string) (*S3Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	return &S3Fetcher{client: s3.NewFromConfig(cfg)}, nil
}

// NewS3FetcherWithClient wraps an existing client
func NewS3FetcherWithClient(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// Fetch streams the object body
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	bucket, key, err := splitBucketURL(rawURL, "s3")
	if err != nil {
		return nil, err
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeTransport, "failed to get S3 object").
			WithDetail("bucket", bucket).
			WithDetail("key", key)
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			wrapped = wrapped.WithDetail("status_code", http.StatusNotFound)
		}
		return nil, wrapped
	}

	header := make(http.Header)
	if v := aws.ToString(out.ContentType); v != "" {
		header.Set("Content-Type", v)
	}
	if v := aws.ToString(out.ContentEncoding); v != "" {
		header.Set("Content-Encoding", v)
	}

	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}

	return &Response{
		URL:           rawURL,
		StatusCode:    http.StatusOK,
		Header:        header,
		ContentLength: length,
		Body:          out.Body,
	}, nil
}
