package objectstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/caseflow/pkg/schema"
)

type fakeS3 struct {
	headErr error
	putErr  error

	lastPut *s3.PutObjectInput
}

func (f *fakeS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.lastPut = in
	return &s3.PutObjectOutput{ETag: aws.String(`"abc123"`)}, nil
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestS3ExistsTrue(t *testing.T) {
	st := NewS3Store(&fakeS3{})
	ok, err := st.Exists(context.Background(), "bucket", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestS3ExistsNotFound(t *testing.T) {
	for _, code := range []string{"NotFound", "NoSuchKey", "404"} {
		st := NewS3Store(&fakeS3{headErr: apiError(code)})
		ok, err := st.Exists(context.Background(), "bucket", "k")
		require.NoError(t, err, "code %s", code)
		assert.False(t, ok)
	}
}

func TestS3ExistsInfrastructureError(t *testing.T) {
	st := NewS3Store(&fakeS3{headErr: apiError("InternalError")})
	_, err := st.Exists(context.Background(), "bucket", "k")
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeStore, flowErr.Code)
}

func TestS3PutSetsContentTypeAndMetadata(t *testing.T) {
	fake := &fakeS3{}
	st := NewS3Store(fake)

	receipt, err := st.Put(context.Background(), "bucket", "a/b.json", []byte(`{}`),
		Metadata{"name": "claim", "submittedby": "ada"})
	require.NoError(t, err)
	assert.Equal(t, `"abc123"`, receipt)

	require.NotNil(t, fake.lastPut)
	assert.Equal(t, "bucket", aws.ToString(fake.lastPut.Bucket))
	assert.Equal(t, "a/b.json", aws.ToString(fake.lastPut.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.lastPut.ContentType))
	assert.Equal(t, "claim", fake.lastPut.Metadata["name"])

	body, err := io.ReadAll(fake.lastPut.Body)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(body))
}

func TestS3PutThrottlingIsRetryable(t *testing.T) {
	st := NewS3Store(&fakeS3{putErr: apiError("ThrottlingException")})
	_, err := st.Put(context.Background(), "bucket", "k", []byte(`{}`), nil)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeStore, flowErr.Code)
	assert.True(t, flowErr.IsRetryable())
}

func TestS3PutAccessDeniedIsPermanent(t *testing.T) {
	st := NewS3Store(&fakeS3{putErr: apiError("AccessDenied")})
	_, err := st.Put(context.Background(), "bucket", "k", []byte(`{}`), nil)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeStoreRejected, flowErr.Code)
	assert.False(t, flowErr.IsRetryable())
}

func TestS3PutNetworkFailureIsRetryable(t *testing.T) {
	st := NewS3Store(&fakeS3{putErr: errors.New("dial tcp: connection refused")})
	_, err := st.Put(context.Background(), "bucket", "k", []byte(`{}`), nil)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeStore, flowErr.Code)
}
