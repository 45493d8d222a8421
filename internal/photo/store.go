// Package photo uploads observation and profile photos to S3-compatible
// object storage and returns their public URLs.
package photo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
)

// ObjectPutter is the part of the S3 client used by Store.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads photos to buckets of one storage endpoint.
type Store struct {
	client     ObjectPutter
	publicBase string
	newID      func() string
	logger     *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid generator used for object names.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store over client. publicBase is the URL prefix under
// which objects are publicly readable as <publicBase>/<bucket>/<key>.
func NewStore(client ObjectPutter, publicBase string, opts ...Option) *Store {
	s := &Store{
		client:     client,
		publicBase: strings.TrimRight(publicBase, "/"),
		newID:      uuid.NewString,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewS3Store builds an S3 client for the configured endpoint using static
// credentials and path-style addressing.
func NewS3Store(ctx context.Context, cfg model.StorageConfig, opts ...Option) (*Store, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, jujuerrors.NotValidf("storage endpoint or credentials unset")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("loading storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return NewStore(client, cfg.PublicBaseURL, opts...), nil
}

// Upload stores body in bucket under a fresh name in owner's folder and
// returns the object's public URL.
func (s *Store) Upload(ctx context.Context, bucket, owner, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading photo: %w", err)
	}
	if len(data) == 0 {
		return "", jujuerrors.NotValidf("empty photo")
	}
	if owner == "" {
		owner = "anon"
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := owner + "/" + s.newID() + extension(contentType)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("uploading photo to %s: %w", bucket, err)
	}

	s.logger.Debug("photo uploaded", zap.String("bucket", bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return s.PublicURL(bucket, key), nil
}

// PublicURL returns the public address of an object.
func (s *Store) PublicURL(bucket, key string) string {
	return s.publicBase + "/" + url.PathEscape(bucket) + "/" + key
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	}
	return ".jpg"
}
