// Package profile reads and edits the signed-in user's row in the users
// collection.
package profile

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
)

// Remote is the part of the backend the service talks to.
type Remote interface {
	Insert(ctx context.Context, collection string, rows any) error
	Select(ctx context.Context, collection string, query url.Values, out any) error
	Update(ctx context.Context, collection string, match url.Values, patch any) error
}

// Uploader stores a photo and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, owner, contentType string, body io.Reader) (string, error)
}

// Update holds the editable profile fields.
type Update struct {
	FirstName        string
	LastName         string
	Mobile           string
	Birthday         string
	Gender           string
	EducationalLevel string
}

type updateRow struct {
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Mobile           string    `json:"mobile"`
	Birthday         *string   `json:"birthday"`
	Gender           string    `json:"gender"`
	EducationalLevel string    `json:"educational_level"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type photoRow struct {
	ProfilePhotoURL string    `json:"profile_photo_url"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Service manages profile rows.
type Service struct {
	remote Remote
	photos Uploader
	bucket string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPhotos enables UpdatePhoto, storing pictures in bucket.
func WithPhotos(u Uploader, bucket string) Option {
	return func(s *Service) {
		s.photos = u
		s.bucket = bucket
	}
}

// WithNow replaces time.Now.
func WithNow(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a profile service.
func NewService(remote Remote, opts ...Option) *Service {
	s := &Service{
		remote: remote,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func byID(userID string) url.Values {
	return url.Values{"id": {"eq." + userID}}
}

// Get returns the profile of userID, or a NotFound error.
func (s *Service) Get(ctx context.Context, userID string) (model.Profile, error) {
	q := byID(userID)
	q.Set("select", "*")

	var rows []model.Profile
	if err := s.remote.Select(ctx, model.CollectionUsers, q, &rows); err != nil {
		return model.Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	if len(rows) == 0 {
		return model.Profile{}, jujuerrors.NotFoundf("profile %s", userID)
	}
	return rows[0], nil
}

// Create inserts a new profile row.
func (s *Service) Create(ctx context.Context, p model.Profile) error {
	if p.ID == "" {
		return jujuerrors.NotValidf("profile without id")
	}
	if err := s.remote.Insert(ctx, model.CollectionUsers, p); err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// Update replaces the editable fields of userID's profile. First and last
// name are required.
func (s *Service) Update(ctx context.Context, userID string, u Update) error {
	row := updateRow{
		FirstName:        strings.TrimSpace(u.FirstName),
		LastName:         strings.TrimSpace(u.LastName),
		Mobile:           strings.TrimSpace(u.Mobile),
		Gender:           strings.TrimSpace(u.Gender),
		EducationalLevel: strings.TrimSpace(u.EducationalLevel),
		UpdatedAt:        s.now().UTC(),
	}
	if row.FirstName == "" || row.LastName == "" {
		return jujuerrors.NotValidf("profile without first and last name")
	}
	if b := strings.TrimSpace(u.Birthday); b != "" {
		if _, err := time.Parse(model.DateLayout, b); err != nil {
			return jujuerrors.NotValidf("birthday %q", b)
		}
		row.Birthday = &b
	}

	if err := s.remote.Update(ctx, model.CollectionUsers, byID(userID), row); err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	s.logger.Info("profile updated", zap.String("user_id", userID))
	return nil
}

// UpdatePhoto uploads a new profile picture and stores its URL.
func (s *Service) UpdatePhoto(ctx context.Context, userID, contentType string, body io.Reader) (string, error) {
	if s.photos == nil {
		return "", jujuerrors.NotSupportedf("profile photos without storage")
	}

	photoURL, err := s.photos.Upload(ctx, s.bucket, userID, contentType, body)
	if err != nil {
		return "", err
	}
	row := photoRow{ProfilePhotoURL: photoURL, UpdatedAt: s.now().UTC()}
	if err := s.remote.Update(ctx, model.CollectionUsers, byID(userID), row); err != nil {
		return "", fmt.Errorf("saving profile photo: %w", err)
	}
	return photoURL, nil
}
