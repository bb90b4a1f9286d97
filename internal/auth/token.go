// ABOUTME: Bearer token sources and JWT claim extraction for the chat client.
// ABOUTME: Tokens come from config, env, or the XDG token file; claims give userID.

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oakmart/chatcore/internal/chat"
)

// EnvToken is the environment variable consulted before the token file.
const EnvToken = "OAKMART_TOKEN"

// TokenSource yields the current bearer token. Implementations return
// chat.ErrAuthRequired when no usable token is available.
type TokenSource interface {
	Token() (string, error)
}

// StaticSource returns a fixed token, primarily for tests and config-injected
// tokens.
type StaticSource string

func (s StaticSource) Token() (string, error) {
	if s == "" {
		return "", chat.ErrAuthRequired
	}
	return string(s), nil
}

// FileSource reads the token from OAKMART_TOKEN or, failing that, from a
// token file (defaulting to ~/.config/oakmart/token).
type FileSource struct {
	Path string
}

func (f *FileSource) Token() (string, error) {
	if tok := os.Getenv(EnvToken); tok != "" {
		return tok, nil
	}

	path := f.Path
	if path == "" {
		path = defaultTokenPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: no token in %s and %s unreadable", chat.ErrAuthRequired, EnvToken, path)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", chat.ErrAuthRequired
	}
	return tok, nil
}

// defaultTokenPath resolves the XDG config location of the token file.
func defaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "oakmart", "token")
}

// Identity is what the realtime channel needs from the bearer token.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// ParseIdentity extracts the subject and expiry claims from a JWT without
// verifying its signature. An absent sub claim or an already-expired token
// yields chat.ErrAuthRequired so callers surface a login prompt instead of
// sending doomed requests.
func ParseIdentity(tokenString string) (*Identity, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", chat.ErrAuthRequired, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: token missing sub claim", chat.ErrAuthRequired)
	}

	id := &Identity{UserID: sub}
	exp, err := claims.GetExpirationTime()
	if err == nil && exp != nil {
		id.ExpiresAt = exp.Time
		if time.Now().After(exp.Time) {
			return nil, fmt.Errorf("%w: token expired at %s", chat.ErrAuthRequired, exp.Time.Format(time.RFC3339))
		}
	}

	return id, nil
}

// Expired reports whether the identity's token has a known expiry in the past.
func (i *Identity) Expired() bool {
	return !i.ExpiresAt.IsZero() && time.Now().After(i.ExpiresAt)
}

// ErrNoIdentity is returned by UserID when the token cannot name a user.
var ErrNoIdentity = errors.New("token carries no identity")

// UserID is a convenience wrapper over ParseIdentity for callers that only
// need the subject.
func UserID(tokenString string) (string, error) {
	id, err := ParseIdentity(tokenString)
	if err != nil {
		return "", err
	}
	if id.UserID == "" {
		return "", ErrNoIdentity
	}
	return id.UserID, nil
}
