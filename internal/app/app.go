// Package app wires the configured components together for the command line
// client.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/auth"
	"github.com/nhle/lepinet/internal/checklist"
	"github.com/nhle/lepinet/internal/credential"
	"github.com/nhle/lepinet/internal/explore"
	"github.com/nhle/lepinet/internal/identify"
	"github.com/nhle/lepinet/internal/model"
	"github.com/nhle/lepinet/internal/photo"
	"github.com/nhle/lepinet/internal/profile"
	"github.com/nhle/lepinet/internal/remote"
	"github.com/nhle/lepinet/internal/retry"
	"github.com/nhle/lepinet/internal/store"
	appsync "github.com/nhle/lepinet/internal/sync"
)

// App holds every service the commands use.
type App struct {
	Config *model.AppConfig
	Logger *zap.Logger

	Store      *store.SQLiteStore
	Remote     *remote.Client
	Auth       *auth.Service
	Checklists *checklist.Store
	Profiles   *profile.Service
	Explore    *explore.Client
	Refresher  *appsync.Refresher

	// Identify is nil when photo storage is not configured.
	Identify *identify.Service
}

// Option configures New.
type Option func(*options)

type options struct {
	keyring  *credential.Keyring
	uploader identify.Uploader
}

// WithKeyring replaces the system keyring.
func WithKeyring(k *credential.Keyring) Option {
	return func(o *options) { o.keyring = k }
}

// WithUploader replaces the S3 photo store.
func WithUploader(u identify.Uploader) Option {
	return func(o *options) { o.uploader = u }
}

// New opens the local store and builds the services for cfg. The caller must
// Close the returned App.
func New(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.keyring == nil {
		ring, err := credential.Open()
		if err != nil {
			return nil, err
		}
		o.keyring = ring
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening draft store: %w", err)
	}

	base := remote.NewClient(cfg.Remote.URL, cfg.Remote.APIKey,
		remote.WithTimeout(time.Duration(cfg.Remote.TimeoutSec)*time.Second),
		remote.WithLogger(logger.Named("remote")),
	)

	authSvc := auth.NewService(auth.NewGoTrue(base), auth.NewKeyringSessions(o.keyring), nil,
		auth.WithProfileRetry(retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Delay:    time.Duration(cfg.Retry.DelayMs) * time.Millisecond,
		}),
		auth.WithLogger(logger.Named("auth")),
	)
	user := base.WithTokens(authSvc)

	uploader := o.uploader
	if uploader == nil {
		if s3, err := photo.NewS3Store(ctx, cfg.Storage, photo.WithLogger(logger.Named("photo"))); err == nil {
			uploader = s3
		} else {
			logger.Debug("photo storage disabled", zap.Error(err))
		}
	}

	profileOpts := []profile.Option{profile.WithLogger(logger.Named("profile"))}
	if uploader != nil {
		profileOpts = append(profileOpts, profile.WithPhotos(uploader, cfg.Storage.AvatarBucket))
	}
	profiles := profile.NewService(user, profileOpts...)
	authSvc.SetProfiles(profiles)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Store:      db,
		Remote:     user,
		Auth:       authSvc,
		Checklists: checklist.NewStore(db, user, checklist.WithLogger(logger.Named("checklist"))),
		Profiles:   profiles,
		Explore: explore.NewClient(user, cfg.Explore.HotspotFunctionURL,
			explore.WithGeocoder(cfg.Explore.GoogleMapsAPIKey),
			explore.WithLogger(logger.Named("explore")),
		),
		Refresher: appsync.New(authSvc, appsync.WithLogger(logger.Named("refresher"))),
	}

	if uploader != nil {
		predictOpts := []identify.ClientOption{
			identify.WithTimeout(time.Duration(cfg.Identify.TimeoutSec) * time.Second),
			identify.WithClientLogger(logger.Named("identify")),
		}
		if cfg.Identify.Mock {
			predictOpts = append(predictOpts, identify.WithMock(2*time.Second))
		}
		a.Identify = identify.NewService(uploader,
			identify.NewClient(cfg.Identify.URL, predictOpts...),
			user, cfg.Storage.PhotoBucket, logger.Named("identify"))
	}

	return a, nil
}

// Start restores the stored session and keeps it fresh until Close.
func (a *App) Start(ctx context.Context) (auth.Snapshot, error) {
	snap, err := a.Auth.Restore(ctx)
	if err != nil {
		return snap, err
	}
	a.Refresher.Start()
	return snap, nil
}

// Owner returns the signed-in user's id or the anonymous owner.
func (a *App) Owner() string {
	if id := a.Auth.Owner(); id != "" {
		return id
	}
	return checklist.AnonymousOwner
}

// Close stops background work and closes the local store.
func (a *App) Close() error {
	a.Refresher.Stop()
	_ = a.Logger.Sync()
	return a.Store.Close()
}
