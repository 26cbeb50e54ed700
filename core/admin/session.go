// Package admin signs and verifies the admin panel session cookie.
//
// A token is base64url(JSON{u, iat, exp}) + "." + base64url(HMAC-SHA256(secret, first segment)),
// both segments unpadded.
package admin

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	CookieName = "rmt_admin"
	CookiePath = "/admin"

	DefaultMaxAge = 7 * 24 * time.Hour
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	ErrInvalidToken       = errors.New("invalid admin session")
	ErrTokenExpired       = errors.New("admin session expired")
	ErrNoSecret           = errors.New("admin cookie secret is not configured")
)

type Session struct {
	Username  string `json:"u"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Signer issues and verifies admin session tokens and checks the configured credentials.
type Signer struct {
	secret   []byte
	username string
	password string
	maxAge   time.Duration
}

func NewSigner(secret, username, password string, maxAge time.Duration) *Signer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Signer{
		secret:   []byte(secret),
		username: username,
		password: password,
		maxAge:   maxAge,
	}
}

func (s *Signer) MaxAge() time.Duration { return s.maxAge }

// Authenticate compares the submitted credentials with the configured ones in constant time.
func (s *Signer) Authenticate(username, password string) error {
	if s.username == "" || s.password == "" {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	pwdOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !(userOK && pwdOK) {
		return ErrInvalidCredentials
	}
	return nil
}

// Sign returns a new token for username valid for the signer's max age.
func (s *Signer) Sign(username string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := NowFunc()
	payload, err := json.Marshal(Session{
		Username:  username,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.maxAge).Unix(),
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding admin session")
	}

	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + s.sign(body), nil
}

// Verify checks the token's signature and expiry and returns its session.
func (s *Signer) Verify(token string) (Session, error) {
	if len(s.secret) == 0 {
		return Session{}, ErrNoSecret
	}

	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Session{}, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(s.sign(parts[0])), []byte(parts[1])) == 0 {
		return Session{}, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	var sess Session
	if err = json.Unmarshal(payload, &sess); err != nil || sess.Username == "" {
		return Session{}, ErrInvalidToken
	}
	if sess.ExpiresAt <= NowFunc().Unix() {
		return Session{}, ErrTokenExpired
	}
	return sess, nil
}

func (s *Signer) sign(body string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// SafeNextPath returns next when it is a relative /admin path, "/admin" otherwise.
func SafeNextPath(next string) string {
	const fallback = "/admin"
	if next == "" ||
		!strings.HasPrefix(next, "/admin") ||
		strings.HasPrefix(next, "//") ||
		strings.ContainsAny(next, "\\\r\n") ||
		strings.Contains(next, "://") {
		return fallback
	}
	// "/administrator" is not an admin path
	if rest := strings.TrimPrefix(next, "/admin"); rest != "" && !strings.ContainsAny(rest[:1], "/?#") {
		return fallback
	}
	return next
}
