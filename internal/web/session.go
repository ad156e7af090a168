package web

import (
	"crypto/sha256"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/flow"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// SessionCookieName is the cookie carrying the session id.
const SessionCookieName = "agrilens_session"

// sessionIDKey is the cookie session value holding the form state key.
const sessionIDKey = "sid"

// Session is one browser's form state.
type Session struct {
	ID     string
	Crop   *flow.CropForm
	Upload *flow.UploadForm
}

// SessionStore keeps sessions in memory, keyed by an id carried in a signed
// cookie. Each access pushes a session's expiry forward by the TTL.
type SessionStore struct {
	ttl     time.Duration
	cookies *sessions.CookieStore
	items   *cache.Cache
	factory func(id string) *Session

	mu            sync.Mutex
	onCountChange func(int)
}

// NewSessionStore returns a store whose sessions expire after ttl without
// use. A non-positive ttl uses the default. secret seeds the cookie signing
// key; when empty a random key is used, so cookies do not survive a restart.
// factory builds new sessions.
func NewSessionStore(ttl time.Duration, secret string, factory func(id string) *Session) *SessionStore {
	if ttl <= 0 {
		ttl = conf.DefaultSessionTTL
	}
	maxAge := int(ttl / time.Second)

	cookies := sessions.NewCookieStore(sessionKey(secret))
	cookies.Options = sessionOptions(maxAge)
	cookies.MaxAge(maxAge)

	s := &SessionStore{
		ttl:     ttl,
		cookies: cookies,
		items:   cache.New(ttl, ttl/2),
		factory: factory,
	}
	s.items.OnEvicted(func(string, any) {
		s.notify()
	})
	return s
}

// sessionKey derives a 32 byte signing key from secret.
func sessionKey(secret string) []byte {
	if secret == "" {
		return securecookie.GenerateRandomKey(32)
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func sessionOptions(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// OnCountChange registers fn to receive the session count after it changes.
func (s *SessionStore) OnCountChange(fn func(int)) {
	s.mu.Lock()
	s.onCountChange = fn
	s.mu.Unlock()
}

// Count returns the number of unexpired sessions.
func (s *SessionStore) Count() int {
	return s.items.ItemCount()
}

// Lookup returns the session with id and refreshes its expiry.
func (s *SessionStore) Lookup(id string) (*Session, bool) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	s.items.Set(id, sess, cache.DefaultExpiration)
	return sess, true
}

// Get returns the request's session, creating one when the request has no
// valid cookie or its session has expired. The cookie is reissued either way
// so its expiry slides with the session's.
func (s *SessionStore) Get(c echo.Context) *Session {
	// A cookie that fails to verify yields a fresh cookie session.
	cs, _ := s.cookies.Get(c.Request(), SessionCookieName)

	if id, ok := cs.Values[sessionIDKey].(string); ok && id != "" {
		if sess, ok := s.Lookup(id); ok {
			s.save(c, cs)
			return sess
		}
	}

	sess := s.factory(uuid.NewString())
	s.items.Set(sess.ID, sess, cache.DefaultExpiration)
	s.notify()
	cs.Values[sessionIDKey] = sess.ID
	s.save(c, cs)
	return sess
}

// Close drops all sessions.
func (s *SessionStore) Close() {
	s.items.Flush()
	s.notify()
}

func (s *SessionStore) save(c echo.Context, cs *sessions.Session) {
	if err := cs.Save(c.Request(), c.Response()); err != nil {
		logger.Global().Module("web").Warn("failed to write session cookie", logger.Error(err))
	}
}

func (s *SessionStore) notify() {
	s.mu.Lock()
	fn := s.onCountChange
	s.mu.Unlock()
	if fn != nil {
		fn(s.items.ItemCount())
	}
}
