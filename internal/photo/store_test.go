package photo

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lepinet/internal/model"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, f.err
}

func fixedID() string { return "0000-photo" }

func TestUpload(t *testing.T) {
	putter := &fakePutter{}
	s := NewStore(putter, "https://proj.example.co/storage/v1/object/public/", WithIDGenerator(fixedID))

	got, err := s.Upload(context.Background(), "checklist_photos", "user-42", "", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)

	assert.Equal(t, "https://proj.example.co/storage/v1/object/public/checklist_photos/user-42/0000-photo.jpg", got)
	assert.Equal(t, "checklist_photos", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "user-42/0000-photo.jpg", aws.ToString(putter.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(10), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, "jpeg bytes", putter.body)
}

func TestUploadPNGAnonymous(t *testing.T) {
	putter := &fakePutter{}
	s := NewStore(putter, "https://cdn.example", WithIDGenerator(fixedID))

	got, err := s.Upload(context.Background(), "profile_photos", "", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/profile_photos/anon/0000-photo.png", got)
}

func TestUploadErrors(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	s := NewStore(putter, "https://cdn.example")

	_, err := s.Upload(context.Background(), "b", "u", "image/jpeg", strings.NewReader(""))
	assert.True(t, errors.Is(err, jujuerrors.NotValid))

	_, err = s.Upload(context.Background(), "b", "u", "image/jpeg", strings.NewReader("x"))
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3StoreRequiresCredentials(t *testing.T) {
	_, err := NewS3Store(context.Background(), model.StorageConfig{Endpoint: "https://x"})
	assert.True(t, errors.Is(err, jujuerrors.NotValid))

	s, err := NewS3Store(context.Background(), model.StorageConfig{
		Endpoint:        "https://proj.example.co/storage/v1/s3",
		PublicBaseURL:   "https://proj.example.co/storage/v1/object/public",
		Region:          "auto",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://proj.example.co/storage/v1/object/public/b/k.jpg", s.PublicURL("b", "k.jpg"))
}
