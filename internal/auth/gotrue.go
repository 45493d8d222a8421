package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/nhle/lepinet/internal/remote"
)

// GoTrue talks to the auth endpoints of the backend.
type GoTrue struct {
	client *remote.Client
	now    func() time.Time
}

// NewGoTrue returns an auth client. client must not carry a token source:
// auth requests authenticate with the public key or an explicit token.
func NewGoTrue(client *remote.Client) *GoTrue {
	return &GoTrue{client: client, now: time.Now}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Password exchanges an email and password for a session.
func (g *GoTrue) Password(ctx context.Context, email, password string) (Session, error) {
	return g.token(ctx, "password", credentials{Email: email, Password: password})
}

// Refresh exchanges a refresh token for a new session.
func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	return g.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (g *GoTrue) token(ctx context.Context, grant string, body any) (Session, error) {
	var s Session
	err := g.client.Do(ctx, remote.Request{
		Method:   http.MethodPost,
		Path:     "/auth/v1/token",
		Query:    url.Values{"grant_type": {grant}},
		Body:     body,
		Resource: "auth token",
	}, &s)
	if err != nil {
		return Session{}, err
	}
	g.fillExpiry(&s)
	return s, nil
}

// SignUpResult is the reply to a sign-up. Session is nil when the account
// must be confirmed by email before signing in.
type SignUpResult struct {
	User    User
	Session *Session
}

type signUpRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Data     map[string]string `json:"data,omitempty"`
}

// The sign-up reply is either a session or a bare user object.
type signUpResponse struct {
	Session
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUp registers a new account.
func (g *GoTrue) SignUp(ctx context.Context, email, password string, data map[string]string) (SignUpResult, error) {
	var resp signUpResponse
	err := g.client.Do(ctx, remote.Request{
		Method:   http.MethodPost,
		Path:     "/auth/v1/signup",
		Body:     signUpRequest{Email: email, Password: password, Data: data},
		Resource: "auth signup",
	}, &resp)
	if err != nil {
		return SignUpResult{}, err
	}

	if resp.AccessToken != "" {
		s := resp.Session
		g.fillExpiry(&s)
		return SignUpResult{User: s.User, Session: &s}, nil
	}
	return SignUpResult{User: User{ID: resp.ID, Email: resp.Email}}, nil
}

// Recover sends a password reset email.
func (g *GoTrue) Recover(ctx context.Context, email string) error {
	return g.client.Do(ctx, remote.Request{
		Method:   http.MethodPost,
		Path:     "/auth/v1/recover",
		Body:     map[string]string{"email": email},
		Resource: "auth recover",
	}, nil)
}

// Logout revokes the refresh tokens of the session behind accessToken.
func (g *GoTrue) Logout(ctx context.Context, accessToken string) error {
	return g.client.Do(ctx, remote.Request{
		Method:   http.MethodPost,
		Path:     "/auth/v1/logout",
		Token:    accessToken,
		Resource: "auth logout",
	}, nil)
}

func (g *GoTrue) fillExpiry(s *Session) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = g.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
}
