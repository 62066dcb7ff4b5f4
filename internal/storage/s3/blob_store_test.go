package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	client := &fakeS3{}
	store, err := NewWithClient(client, "exports")
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "/run/summary.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, "s3://exports/run/summary.txt", uri)
	require.Equal(t, "run/summary.txt", aws.ToString(client.input.Key))
	require.Equal(t, "text/plain", aws.ToString(client.input.ContentType))
	require.Equal(t, "hello", client.body)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	_, err := NewWithClient(nil, "b")
	require.Error(t, err)

	store, err := NewWithClient(&fakeS3{err: errors.New("denied")}, "b")
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "k", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "denied")

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}
