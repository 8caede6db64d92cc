package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-functions/internal/apperr"
)

type memS3 struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Key)] = b
	m.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestPutJSONThenGet(t *testing.T) {
	mem := newMemS3()
	store := New(mem, "etl-bucket")
	ctx := context.Background()

	require.NoError(t, store.PutJSON(ctx, "etl-data/2024-01-15/transformed_data.json", map[string]any{"region": "東京"}))
	assert.Equal(t, ContentTypeJSON, mem.types["etl-data/2024-01-15/transformed_data.json"])

	b, err := store.Get(ctx, "etl-data/2024-01-15/transformed_data.json")
	require.NoError(t, err)
	assert.Contains(t, string(b), "東京")
}

func TestGetMissing(t *testing.T) {
	store := New(newMemS3(), "etl-bucket")
	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://etl-bucket/nope")
}

func TestPutFailureIsConnectivity(t *testing.T) {
	mem := newMemS3()
	mem.putErr = errors.New("AccessDenied")
	err := New(mem, "b").Put(context.Background(), "k", ContentTypeCSV, []byte("x"))
	assert.Equal(t, apperr.KindConnectivity, apperr.KindOf(err))
}
