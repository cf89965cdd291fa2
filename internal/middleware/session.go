package middleware

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"time"

	"static-server/internal/logging"
	"static-server/internal/metrics"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// SessionMaxAge is the default cookie lifetime: ten years.
const SessionMaxAge = 10 * 365 * 24 * time.Hour

// SessionConfig holds configuration for the session middleware
type SessionConfig struct {
	// Name is the cookie name.
	Name string
	// Secret signs the cookie. Must not be empty.
	Secret string
	MaxAge time.Duration
	Path   string
	Secure bool
	// SameSite defaults to Lax.
	SameSite http.SameSite
}

// DefaultSessionConfig returns the defaults with the given secret.
func DefaultSessionConfig(secret string) SessionConfig {
	return SessionConfig{
		Name:     "session",
		Secret:   secret,
		MaxAge:   SessionMaxAge,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

// ErrEmptySecret is returned when no signing secret is configured.
var ErrEmptySecret = errors.New("session: signing secret must not be empty")

// sessionKeyInfo separates the cookie signing key from any other key that
// might be derived from the same secret.
const sessionKeyInfo = "static-server session cookie v1"

type sessionClaims struct {
	Data map[string]any `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// SessionCodec signs and verifies session cookie values.
type SessionCodec struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionCodec derives an HMAC-SHA256 key from secret.
func NewSessionCodec(secret string, maxAge time.Duration) (*SessionCodec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sessionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	if maxAge <= 0 {
		maxAge = SessionMaxAge
	}
	return &SessionCodec{key: key, maxAge: maxAge, now: time.Now}, nil
}

// Encode signs values into a cookie value that expires after maxAge.
func (c *SessionCodec) Encode(values map[string]any) (string, error) {
	now := c.now()
	claims := sessionClaims{
		Data: values,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns its values.
func (c *SessionCodec) Decode(value string) (map[string]any, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	claims := &sessionClaims{}
	_, err := parser.ParseWithClaims(value, claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if claims.Data == nil {
		claims.Data = map[string]any{}
	}
	return claims.Data, nil
}

// Session is the request-scoped key-value mapping stored in the cookie.
type Session struct {
	values  map[string]any
	isNew   bool
	changed bool
	cleared bool
}

func newSession(values map[string]any, isNew bool) *Session {
	if values == nil {
		values = map[string]any{}
	}
	return &Session{values: values, isNew: isNew}
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.values[key] = value
	s.changed = true
	s.cleared = false
}

// Delete removes key.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.changed = true
	}
}

// Clear drops every value. A cleared session that stays empty expires the
// cookie.
func (s *Session) Clear() {
	s.values = map[string]any{}
	s.changed = true
	s.cleared = true
}

// Len returns the number of stored values.
func (s *Session) Len() int { return len(s.values) }

// IsNew reports whether the request carried no valid session cookie.
func (s *Session) IsNew() bool { return s.isNew }

// Changed reports whether the session was modified during this request.
func (s *Session) Changed() bool { return s.changed }

// Values returns a copy of the stored values.
func (s *Session) Values() map[string]any {
	return maps.Clone(s.values)
}

type sessionKey struct{}

// SessionFrom returns the session attached to r, or nil if the session
// middleware did not run.
func SessionFrom(r *http.Request) *Session {
	s, _ := r.Context().Value(sessionKey{}).(*Session)
	return s
}

// sessionResponseWriter writes the session cookie before the first byte of
// the response leaves.
type sessionResponseWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (s *sessionResponseWriter) writeCookie() {
	if s.committed {
		return
	}
	s.committed = true
	s.commit()
}

func (s *sessionResponseWriter) WriteHeader(code int) {
	s.writeCookie()
	s.ResponseWriter.WriteHeader(code)
}

func (s *sessionResponseWriter) Write(b []byte) (int, error) {
	s.writeCookie()
	return s.ResponseWriter.Write(b)
}

func (s *sessionResponseWriter) Flush() {
	s.writeCookie()
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// SessionStore loads and saves sessions as signed cookies.
type SessionStore struct {
	config SessionConfig
	codec  *SessionCodec
}

// NewSessionStore validates config and derives the signing key.
func NewSessionStore(config SessionConfig) (*SessionStore, error) {
	codec, err := NewSessionCodec(config.Secret, config.MaxAge)
	if err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = "session"
	}
	if config.Path == "" {
		config.Path = "/"
	}
	if config.MaxAge <= 0 {
		config.MaxAge = SessionMaxAge
	}
	if config.SameSite == 0 {
		config.SameSite = http.SameSiteLaxMode
	}
	return &SessionStore{config: config, codec: codec}, nil
}

// Load reads the session cookie from r. Missing, tampered or expired cookies
// yield a new empty session.
func (st *SessionStore) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(st.config.Name)
	if err != nil || cookie.Value == "" {
		metrics.SessionCookiesTotal.WithLabelValues("none").Inc()
		return newSession(nil, true)
	}

	values, err := st.codec.Decode(cookie.Value)
	if err != nil {
		metrics.SessionCookiesTotal.WithLabelValues("rejected").Inc()
		logging.Debug("Rejected session cookie from %s: %v", r.RemoteAddr, err)
		return newSession(nil, true)
	}

	metrics.SessionCookiesTotal.WithLabelValues("valid").Inc()
	return newSession(values, false)
}

// Save writes s to w as a Set-Cookie header.
func (st *SessionStore) Save(w http.ResponseWriter, s *Session) error {
	cookie := &http.Cookie{
		Name:     st.config.Name,
		Path:     st.config.Path,
		HttpOnly: true,
		Secure:   st.config.Secure,
		SameSite: st.config.SameSite,
	}

	if s.cleared && s.Len() == 0 {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		http.SetCookie(w, cookie)
		return nil
	}

	value, err := st.codec.Encode(s.values)
	if err != nil {
		return err
	}
	cookie.Value = value
	cookie.MaxAge = int(st.config.MaxAge / time.Second)
	cookie.Expires = st.codec.now().Add(st.config.MaxAge).UTC()
	http.SetCookie(w, cookie)
	return nil
}

// Sessions returns a middleware that attaches a cookie-backed session to
// every request and refreshes the cookie on every response.
func Sessions(store *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := store.Load(r)

			sw := &sessionResponseWriter{ResponseWriter: w}
			sw.commit = func() {
				if err := store.Save(sw.ResponseWriter, session); err != nil {
					logging.Error("Failed to save session: %v", err)
				}
			}

			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))

			// Nothing was written; net/http will send an empty 200.
			sw.writeCookie()
		})
	}
}
