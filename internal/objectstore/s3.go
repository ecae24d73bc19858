package objectstore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/rendis/caseflow/pkg/schema"
)

// s3API is the slice of the S3 client the adapter needs.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes submissions to S3 buckets.
type S3Store struct {
	client s3API
}

// NewS3Store wraps an S3 client.
func NewS3Store(client s3API) *S3Store {
	return &S3Store{client: client}
}

func (s *S3Store) Exists(ctx context.Context, namespace, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(namespace),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classifyS3Error(err, "head "+namespace+"/"+key)
	}
	return true, nil
}

func (s *S3Store) Put(ctx context.Context, namespace, key string, body []byte, meta Metadata) (string, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(namespace),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    meta,
	})
	if err != nil {
		return "", classifyS3Error(err, "put "+namespace+"/"+key)
	}
	return aws.ToString(out.ETag), nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}

// classifyS3Error splits S3 failures into retryable infrastructure errors
// and permanent rejections (access denied, bad request). Not-found and
// throttling from the provider count as transient: buckets are provisioned
// out of band and may lag behind a new product.
func classifyS3Error(err error, op string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		for _, transient := range []string{
			"Throttl", "SlowDown", "Timeout", "Internal", "Unavailable",
			"NotFound", "NoSuchKey", "NoSuchBucket",
		} {
			if strings.Contains(code, transient) {
				return schema.NewErrorf(schema.ErrCodeStore, "object store failed on %s", op).WithCause(err)
			}
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return schema.NewErrorf(schema.ErrCodeStoreRejected, "object store rejected %s", op).WithCause(err)
		}
		return schema.NewErrorf(schema.ErrCodeStore, "object store failed on %s", op).WithCause(err)
	}
	if apiErr != nil {
		return schema.NewErrorf(schema.ErrCodeStoreRejected, "object store rejected %s", op).WithCause(err)
	}
	// Network-level failure, no response. Worth retrying.
	return schema.NewErrorf(schema.ErrCodeStore, "object store unreachable on %s", op).WithCause(err)
}

var _ Store = (*S3Store)(nil)
