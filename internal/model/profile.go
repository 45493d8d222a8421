package model

import "time"

// Profile is a row of the "users" collection.
type Profile struct {
	ID               string     `json:"id"`
	Email            string     `json:"email,omitempty"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Mobile           string     `json:"mobile,omitempty"`
	Birthday         string     `json:"birthday,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	EducationalLevel string     `json:"educational_level,omitempty"`
	ProfilePhotoURL  *string    `json:"profile_photo_url,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// DisplayName joins the first and last name.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
