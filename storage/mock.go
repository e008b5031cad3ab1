package storage

import (
	"context"
	"maps"
	"sync"
	"time"

	"dbauthd/core"
)

const (
	// FixtureSalt and the hashes below were produced for the password "password".
	FixtureSalt       = "2ef27f4073c603ba8b7807c6de6d6a89"
	FixturePassword   = "password"
	FixtureHash       = "69b531706d8726a98cf183929514614374b16b44dde30db8291d70ce9e9b36ca"
	FixtureLegacyHash = "0c2b24e20ee76a887eac1415cc2c175ff961e7a0f057cead74789c43399dd5ba"

	ValidResetToken   = "dmFsaWRyZXNldDEy"
	ExpiredResetToken = "ZXhwaXJlZHJlc2V0"
)

var (
	User1 = &core.User{
		ID:             "11111111-1111-1111-1111-111111111111",
		Username:       "alice@example.com",
		HashedPassword: FixtureHash,
		Salt:           FixtureSalt,
		Attributes:     map[string]any{"name": "Alice"},
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	// User2 still carries a hash from the single-iteration scheme.
	User2 = &core.User{
		ID:             "22222222-2222-2222-2222-222222222222",
		Username:       "bob@example.com",
		HashedPassword: FixtureLegacyHash,
		Salt:           FixtureSalt,
		CreatedAt:      time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	User3 = &core.User{
		ID:                  "33333333-3333-3333-3333-333333333333",
		Username:            "carol@example.com",
		HashedPassword:      FixtureHash,
		Salt:                FixtureSalt,
		ResetToken:          ptr(ValidResetToken),
		ResetTokenExpiresAt: ptr(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)),
		CreatedAt:           time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		UpdatedAt:           time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
	}

	User4 = &core.User{
		ID:                  "44444444-4444-4444-4444-444444444444",
		Username:            "dave@example.com",
		HashedPassword:      FixtureHash,
		Salt:                FixtureSalt,
		ResetToken:          ptr(ExpiredResetToken),
		ResetTokenExpiresAt: ptr(time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC)),
		CreatedAt:           time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:           time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	AllUsers = []*core.User{User1, User2, User3, User4}
)

func ptr[T any](v T) *T {
	return &v
}

// mockUser keeps the retired token next to the user the way the sql tables do.
type mockUser struct {
	user              core.User
	retiredResetToken string
}

// MockRepository is an in-memory core.Repository seeded with copies of AllUsers.
type MockRepository struct {
	mu    sync.Mutex
	users map[string]*mockUser

	// Track method calls for verification
	FindByIDCalls           int
	FindByUsernameCalls     int
	CreateUserCalls         int
	UpdatePasswordHashCalls int
	SetResetTokenCalls      int
	ClearResetTokenCalls    int
	ConsumeResetTokenCalls  int
}

func NewMockRepository() *MockRepository {
	repo := &MockRepository{
		users: make(map[string]*mockUser),
	}
	for _, user := range AllUsers {
		repo.users[user.ID] = &mockUser{user: cloneUser(user)}
	}
	return repo
}

func cloneUser(user *core.User) core.User {
	c := *user
	c.Attributes = maps.Clone(user.Attributes)
	if user.ResetToken != nil {
		c.ResetToken = ptr(*user.ResetToken)
	}
	if user.ResetTokenExpiresAt != nil {
		c.ResetTokenExpiresAt = ptr(*user.ResetTokenExpiresAt)
	}
	return c
}

func (m *MockRepository) snapshot(u *mockUser) *core.User {
	c := cloneUser(&u.user)
	return &c
}

func (m *MockRepository) FindByID(ctx context.Context, id string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindByIDCalls++

	u, ok := m.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return m.snapshot(u), nil
}

func (m *MockRepository) FindByUsername(ctx context.Context, username string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindByUsernameCalls++

	for _, u := range m.users {
		if u.user.Username == username {
			return m.snapshot(u), nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *MockRepository) FindByResetToken(ctx context.Context, token string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if (u.user.ResetToken != nil && *u.user.ResetToken == token) || u.retiredResetToken == token {
			return m.snapshot(u), nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *MockRepository) CreateUser(ctx context.Context, user *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateUserCalls++

	if _, exists := m.users[user.ID]; exists {
		return core.ErrAlreadyExists
	}
	for _, u := range m.users {
		if u.user.Username == user.Username {
			return core.ErrAlreadyExists
		}
	}
	m.users[user.ID] = &mockUser{user: cloneUser(user)}
	return nil
}

func (m *MockRepository) UpdatePasswordHash(ctx context.Context, userID, hashedPassword, salt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdatePasswordHashCalls++

	u, ok := m.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.user.HashedPassword = hashedPassword
	u.user.Salt = salt
	u.user.UpdatedAt = time.Now()
	return nil
}

func (m *MockRepository) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetResetTokenCalls++

	u, ok := m.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.user.ResetToken = ptr(token)
	u.user.ResetTokenExpiresAt = ptr(expiresAt)
	u.retiredResetToken = ""
	u.user.UpdatedAt = time.Now()
	return nil
}

func (m *MockRepository) ClearResetToken(ctx context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearResetTokenCalls++

	u, ok := m.activeToken(userID, token)
	if !ok {
		return core.ErrNotFound
	}
	u.retiredResetToken = token
	u.user.ResetToken = nil
	u.user.UpdatedAt = time.Now()
	return nil
}

func (m *MockRepository) ConsumeResetToken(ctx context.Context, userID, token, hashedPassword, salt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsumeResetTokenCalls++

	u, ok := m.activeToken(userID, token)
	if !ok {
		return core.ErrNotFound
	}
	u.user.HashedPassword = hashedPassword
	u.user.Salt = salt
	u.user.ResetToken = nil
	u.user.ResetTokenExpiresAt = nil
	u.retiredResetToken = ""
	u.user.UpdatedAt = time.Now()
	return nil
}

func (m *MockRepository) activeToken(userID, token string) (*mockUser, bool) {
	u, ok := m.users[userID]
	if !ok || u.user.ResetToken == nil || *u.user.ResetToken != token {
		return nil, false
	}
	return u, true
}

var _ core.Repository = (*MockRepository)(nil)
