package model

// UserAction records whether an AI prediction was accepted.
type UserAction string

// Identification decisions.
const (
	UserActionAccepted UserAction = "ACCEPTED"
	UserActionRejected UserAction = "REJECTED"
)

// Prediction is the response of the species identification model.
type Prediction struct {
	SpeciesName string  `json:"species_name"`
	SpeciesID   string  `json:"species_id"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error,omitempty"`
}

// AILogRow is a row of the "ai_logs" collection.
type AILogRow struct {
	UserID              string     `json:"user_id"`
	ImageURL            string     `json:"image_url"`
	PredictedID         string     `json:"predicted_id"`
	PredictedConfidence float64    `json:"predicted_confidence"`
	UserAction          UserAction `json:"user_action"`
}
