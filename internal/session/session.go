// Package session keeps registered users and their login sessions. A
// session is an opaque random token with an expiry; presence is the set of
// users holding at least one live session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/docstore"
	"github.com/pelusa-v/threadchat/internal/metrics"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// bannedUsername is refused at registration and login.
const bannedUsername = "dog"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type userRecord struct {
	V         int       `json:"v"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionRecord struct {
	V int `json:"v"`
	Session
}

type Manager struct {
	mu       sync.RWMutex
	users    map[string]time.Time
	sessions map[string]Session

	docs  docstore.Store
	admin string
	ttl   time.Duration
	log   *slog.Logger

	// presence is called after the online set may have changed.
	presence func()
	// expired is called for a user whose last session was swept.
	expired func(username string)

	now      func() time.Time
	newToken func() string
}

func NewManager(docs docstore.Store, admin string, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		users:    map[string]time.Time{},
		sessions: map[string]Session{},
		docs:     docs,
		admin:    admin,
		ttl:      ttl,
		log:      logger,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

func (m *Manager) OnPresence(fn func())              { m.presence = fn }
func (m *Manager) OnExpired(fn func(username string)) { m.expired = fn }

// Bootstrap loads users and live sessions and registers the admin user.
func (m *Manager) Bootstrap(ctx context.Context) error {
	users, err := docstore.ScanJSON[userRecord](ctx, m.docs, docstore.Users)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	sessions, err := docstore.ScanJSON[sessionRecord](ctx, m.docs, docstore.Sessions)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range users {
		m.users[u.Username] = u.CreatedAt
	}
	for _, s := range sessions {
		if s.Expired(now) {
			if err := m.docs.Delete(ctx, docstore.Sessions, s.Token); err != nil {
				return fmt.Errorf("drop expired session: %w", err)
			}
			continue
		}
		m.sessions[s.Token] = s.Session
	}
	if _, ok := m.users[m.admin]; !ok {
		if err := m.putUser(ctx, m.admin, now); err != nil {
			return err
		}
	}
	m.log.Info("sessions_loaded", "users", len(m.users), "sessions", len(m.sessions))
	return nil
}

func checkUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperr.ErrRequiredUsername
	}
	if strings.EqualFold(username, bannedUsername) {
		return "", apperr.ErrAuthInsufficient
	}
	if !usernamePattern.MatchString(username) {
		return "", apperr.ErrInvalidUsername
	}
	return username, nil
}

func (m *Manager) Register(ctx context.Context, username string) (string, error) {
	username, err := checkUsername(username)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return "", apperr.ErrUserExists
	}
	if err := m.putUser(ctx, username, m.now()); err != nil {
		return "", err
	}
	m.log.Info("user_registered", "username", username)
	return username, nil
}

func (m *Manager) putUser(ctx context.Context, username string, at time.Time) error {
	rec := userRecord{V: 1, Username: username, CreatedAt: at.UTC()}
	if err := docstore.PutJSON(ctx, m.docs, docstore.Users, username, rec); err != nil {
		return apperr.Internal(fmt.Errorf("persist user %s: %w", username, err))
	}
	m.users[username] = rec.CreatedAt
	return nil
}

// Login opens a new session for a registered user.
func (m *Manager) Login(ctx context.Context, username string) (Session, error) {
	username, err := checkUsername(username)
	if err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	if _, ok := m.users[username]; !ok {
		m.mu.Unlock()
		return Session{}, apperr.ErrUserNotRegistered
	}
	now := m.now().UTC()
	s := Session{
		Token:     m.newToken(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := docstore.PutJSON(ctx, m.docs, docstore.Sessions, s.Token, sessionRecord{V: 1, Session: s}); err != nil {
		m.mu.Unlock()
		return Session{}, apperr.Internal(fmt.Errorf("persist session: %w", err))
	}
	m.sessions[s.Token] = s
	m.mu.Unlock()

	m.log.Info("session_created", "username", username)
	m.notifyPresence()
	return s, nil
}

// Lookup resolves a token to its live session.
func (m *Manager) Lookup(token string) (Session, error) {
	if token == "" {
		return Session{}, apperr.ErrAuthMissing
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok || s.Expired(m.now()) {
		return Session{}, apperr.ErrInvalidSession
	}
	return s, nil
}

// Logout ends the session. Unknown tokens are ignored.
func (m *Manager) Logout(ctx context.Context, token string) error {
	m.mu.Lock()
	s, ok := m.sessions[token]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if err := m.docs.Delete(ctx, docstore.Sessions, token); err != nil {
		m.mu.Unlock()
		return apperr.Internal(fmt.Errorf("delete session: %w", err))
	}
	delete(m.sessions, token)
	m.mu.Unlock()

	m.log.Info("session_deleted", "username", s.Username)
	m.notifyPresence()
	return nil
}

func (m *Manager) Role(username string) string {
	if username == m.admin {
		return RoleAdmin
	}
	return RoleUser
}

func (m *Manager) Registered(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[username]
	return ok
}

// Online returns the sorted usernames holding a live session.
func (m *Manager) Online() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onlineLocked(m.now())
}

func (m *Manager) onlineLocked(now time.Time) []string {
	live := lo.Filter(lo.Values(m.sessions), func(s Session, _ int) bool { return !s.Expired(now) })
	names := lo.Uniq(lo.Map(live, func(s Session, _ int) string { return s.Username }))
	sort.Strings(names)
	return names
}

// Sweep removes expired sessions and reports how many were dropped.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	var dropped []Session
	for token, s := range m.sessions {
		if !s.Expired(now) {
			continue
		}
		if err := m.docs.Delete(ctx, docstore.Sessions, token); err != nil {
			m.mu.Unlock()
			return len(dropped), fmt.Errorf("delete session: %w", err)
		}
		delete(m.sessions, token)
		dropped = append(dropped, s)
	}
	still := lo.Associate(lo.Values(m.sessions), func(s Session) (string, bool) { return s.Username, true })
	m.mu.Unlock()

	if len(dropped) == 0 {
		return 0, nil
	}
	metrics.SessionsExpired.Add(float64(len(dropped)))

	gone := lo.Uniq(lo.FilterMap(dropped, func(s Session, _ int) (string, bool) {
		return s.Username, !still[s.Username]
	}))
	sort.Strings(gone)
	for _, name := range gone {
		m.log.Info("session_expired", "username", name)
		if m.expired != nil {
			m.expired(name)
		}
	}
	m.notifyPresence()
	return len(dropped), nil
}

func (m *Manager) notifyPresence() {
	if m.presence != nil {
		m.presence()
	}
}
