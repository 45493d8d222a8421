// Package identify runs AI species identification on observation photos.
//
// A photo is uploaded to the checklist photo bucket, sent to the model, and
// the user's decision on the prediction is recorded for model evaluation.
package identify

import (
	"bytes"
	"context"
	"fmt"
	"io"

	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
)

// Predictor returns the model's prediction for an image.
type Predictor interface {
	Predict(ctx context.Context, filename string, image io.Reader) (model.Prediction, error)
}

// Uploader stores a photo and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, owner, contentType string, body io.Reader) (string, error)
}

// Inserter writes rows to a backend collection.
type Inserter interface {
	Insert(ctx context.Context, collection string, rows any) error
}

// Result is a prediction together with the uploaded photo it was made for.
type Result struct {
	model.Prediction
	ImageURL string
}

// Service ties upload, prediction and decision logging together.
type Service struct {
	photos    Uploader
	predictor Predictor
	remote    Inserter
	bucket    string
	logger    *zap.Logger
}

// NewService returns an identification service storing photos in bucket.
func NewService(photos Uploader, predictor Predictor, remote Inserter, bucket string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		photos:    photos,
		predictor: predictor,
		remote:    remote,
		bucket:    bucket,
		logger:    logger,
	}
}

// Identify uploads image for owner and asks the model for the species.
func (s *Service) Identify(ctx context.Context, owner, filename string, image io.Reader) (Result, error) {
	if owner == "" {
		return Result{}, jujuerrors.NotValidf("identification without a signed-in user")
	}

	data, err := io.ReadAll(image)
	if err != nil {
		return Result{}, fmt.Errorf("reading image: %w", err)
	}

	imageURL, err := s.photos.Upload(ctx, s.bucket, owner, "image/jpeg", bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}

	p, err := s.predictor.Predict(ctx, filename, bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("species predicted",
		zap.String("species", p.SpeciesName),
		zap.String("species_id", p.SpeciesID),
		zap.Float64("confidence", p.Confidence),
	)
	return Result{Prediction: p, ImageURL: imageURL}, nil
}

// Decide records whether owner accepted the prediction. A failure to record
// the decision is logged and does not affect the caller.
func (s *Service) Decide(ctx context.Context, owner string, r Result, accepted bool) model.UserAction {
	action := model.UserActionRejected
	if accepted {
		action = model.UserActionAccepted
	}

	row := model.AILogRow{
		UserID:              owner,
		ImageURL:            r.ImageURL,
		PredictedID:         r.SpeciesID,
		PredictedConfidence: r.Confidence,
		UserAction:          action,
	}
	if err := s.remote.Insert(ctx, model.CollectionAILogs, row); err != nil {
		s.logger.Warn("recording identification decision failed", zap.Error(err))
	} else {
		s.logger.Debug("identification decision recorded", zap.String("action", string(action)))
	}
	return action
}
