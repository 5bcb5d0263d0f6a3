package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

type fakePresence struct {
	online map[string]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]bool)}
}

func (p *fakePresence) MarkOnline(ctx context.Context, userID string) error {
	p.online[userID] = true
	return nil
}

func (p *fakePresence) MarkOffline(ctx context.Context, userID string) error {
	delete(p.online, userID)
	return nil
}

type fakeLoops struct {
	active   map[string]bool
	startErr error
}

func newFakeLoops() *fakeLoops {
	return &fakeLoops{active: make(map[string]bool)}
}

func (l *fakeLoops) Start(userID string) error {
	if l.startErr != nil {
		return l.startErr
	}
	l.active[userID] = true
	return nil
}

func (l *fakeLoops) Stop(userID string) {
	delete(l.active, userID)
}

func okAuth(user *account.User) AuthenticateFunc {
	return func(ctx context.Context, username, password string) (*account.User, error) {
		if username == user.Username && password == "secret-password" {
			return user, nil
		}
		return nil, shared.ErrWrongPassword
	}
}

func testUser(t *testing.T) *account.User {
	t.Helper()
	user, err := account.NewUser("u1", "dana", "dana@example.com", "secret-password")
	require.NoError(t, err)
	return user
}

func TestSession_LoginStartsLiveView(t *testing.T) {
	user := testUser(t)
	presence := newFakePresence()
	loops := newFakeLoops()
	s := NewSessionService(okAuth(user), presence, loops, nil, nil)

	got, err := s.Login(context.Background(), "dana", "secret-password")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.True(t, presence.online["u1"])
	assert.True(t, loops.active["u1"])
}

func TestSession_BadPasswordStartsNothing(t *testing.T) {
	user := testUser(t)
	presence := newFakePresence()
	loops := newFakeLoops()
	s := NewSessionService(okAuth(user), presence, loops, nil, nil)

	_, err := s.Login(context.Background(), "dana", "wrong")
	require.ErrorIs(t, err, shared.ErrWrongPassword)
	assert.Empty(t, presence.online)
	assert.Empty(t, loops.active)
}

func TestSession_LogoutTearsDown(t *testing.T) {
	user := testUser(t)
	presence := newFakePresence()
	loops := newFakeLoops()
	s := NewSessionService(okAuth(user), presence, loops, nil, nil)

	_, err := s.Login(context.Background(), "dana", "secret-password")
	require.NoError(t, err)

	s.Logout(context.Background(), "u1")
	assert.Empty(t, presence.online)
	assert.Empty(t, loops.active)
}

func TestSession_LoopFailureDoesNotBlockLogin(t *testing.T) {
	user := testUser(t)
	loops := newFakeLoops()
	loops.startErr = shared.ErrServiceUnavailable
	s := NewSessionService(okAuth(user), nil, loops, nil, nil)

	got, err := s.Login(context.Background(), "dana", "secret-password")
	require.NoError(t, err, "a sync loop failure must not fail the login")
	assert.Equal(t, "u1", got.ID)
}
