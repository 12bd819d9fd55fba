// Package session persists the authenticated session produced by a login
// exchange and keeps in-memory views of it converged across instances.
package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-link/internal/utils"
)

// SessionKey is the single slot holding the serialized AuthSession.
const SessionKey = "auth:session"

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// AuthSession is written and read as one unit.
type AuthSession struct {
	AccessToken         string     `json:"accessToken"`
	RefreshToken        string     `json:"refreshToken,omitempty"`
	User                User       `json:"user"`
	ProviderAccessToken string     `json:"googleAccessToken,omitempty"`
	IsNewUser           bool       `json:"isNewUser"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// PublishedState is the projection other components read.
type PublishedState struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user"`
}

// Publisher receives the projection whenever the session changes. The
// browser scope of ctx selects whose projection changes.
type Publisher interface {
	SetCurrentUser(ctx context.Context, u *User)
	SetAuthenticated(ctx context.Context, authenticated bool)
}

func (s *AuthSession) Published() PublishedState {
	if s == nil {
		return PublishedState{}
	}
	return PublishedState{Authenticated: true, User: utils.Ptr(s.User)}
}
