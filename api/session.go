////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"gitlab.com/xx_network/primitives/netTime"
)

// Session wraps the bearer credential issued at login. The token is opaque to
// this client except for its subject and expiry claims: the subject is this
// user's ID, needed for sender-is-self checks, and the expiry lets callers
// detect a dead session before the backend rejects it. Signature verification
// is the backend's job; the claims are parsed unverified.
type Session struct {
	token     string
	userID    string
	expiresAt time.Time
}

// NewSession parses the bearer token and returns a Session. An absent or
// malformed token is a fatal precondition: the caller must send the user back
// through login, nothing in this client can proceed without one.
func NewSession(token string) (*Session, error) {
	if token == "" {
		return nil, errors.New("session: missing bearer token")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(
		token, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "session: malformed bearer token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("session: unexpected claims type")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("session: token has no subject claim")
	}

	s := &Session{token: token, userID: sub}
	if exp, ok := claims["exp"].(float64); ok {
		s.expiresAt = time.Unix(int64(exp), 0)
	}

	return s, nil
}

// Token returns the raw bearer token.
func (s *Session) Token() string {
	return s.token
}

// UserID returns this user's ID, taken from the token's subject claim.
func (s *Session) UserID() string {
	return s.userID
}

// Expired reports whether the token's expiry has passed. Tokens without an
// expiry claim never report expired.
func (s *Session) Expired() bool {
	return !s.expiresAt.IsZero() && netTime.Now().After(s.expiresAt)
}
