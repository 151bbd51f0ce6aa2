package auth_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-guild-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUserStore implements auth.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) FindByID(ctx context.Context, id uuid.UUID, columns ...string) (*auth.User, error) {
	args := m.Called(ctx, id, columns)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) Save(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

// memoryStore is an in-memory auth.UserStore keyed by e-mail.
type memoryStore struct {
	mu       sync.Mutex
	byEmail  map[string]*auth.User
	saves    int
	reads    int
	findErr  error
	saveErr  error
	lastCols []string
}

func newMemoryStore(users ...*auth.User) *memoryStore {
	s := &memoryStore{byEmail: map[string]*auth.User{}}
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		s.byEmail[u.Email] = u.Clone()
	}
	return s
}

func (s *memoryStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *memoryStore) FindByID(ctx context.Context, id uuid.UUID, columns ...string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	s.lastCols = columns
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.byEmail {
		if u.ID == id {
			return u.Clone(), nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *memoryStore) Save(ctx context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	s.saves++
	s.byEmail[user.Email] = user.Clone()
	return nil
}

func (s *memoryStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byEmail {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) get(email string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byEmail[email]; ok {
		return u.Clone()
	}
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}
