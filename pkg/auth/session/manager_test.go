package session

import (
	"context"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratebox/cratebox-backend/pkg/config"
)

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.values[key] = value.(string)
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeStore) AccessSessionKey(accessID string) string {
	return "session:" + accessID
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "cratebox-test",
		ExpirationMinutes: 60,
		RefreshTTLHours:   720,
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	mgr, err := NewManager(store, testJWTConfig())
	require.NoError(t, err)
	return mgr, store
}

func TestNewManager_RejectsShortRefreshTTL(t *testing.T) {
	cfg := testJWTConfig()
	cfg.RefreshTTLHours = 1
	cfg.ExpirationMinutes = 120

	_, err := NewManager(newFakeStore(), cfg)
	assert.Error(t, err)
}

func TestGenerateAndHasSession(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	accessID := NewAccessID()
	token, err := mgr.Generate(ctx, accessID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, token, store.values["session:"+accessID])

	ok, err := mgr.HasSession(ctx, accessID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mgr.HasSession(ctx, NewAccessID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRotate(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	accessID := NewAccessID()
	token, err := mgr.Generate(ctx, accessID)
	require.NoError(t, err)

	newAccessID, newToken, err := mgr.Rotate(ctx, accessID, token)
	require.NoError(t, err)
	assert.NotEqual(t, accessID, newAccessID)
	assert.NotEqual(t, token, newToken)

	// old session is gone, new one is live
	ok, err := mgr.HasSession(ctx, accessID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mgr.HasSession(ctx, newAccessID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRotate_RejectsMismatchedToken(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	accessID := NewAccessID()
	_, err := mgr.Generate(ctx, accessID)
	require.NoError(t, err)

	_, _, err = mgr.Rotate(ctx, accessID, "forged-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = mgr.Rotate(ctx, NewAccessID(), "anything")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevoke(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	accessID := NewAccessID()
	_, err := mgr.Generate(ctx, accessID)
	require.NoError(t, err)

	require.NoError(t, mgr.Revoke(ctx, accessID))

	ok, err := mgr.HasSession(ctx, accessID)
	require.NoError(t, err)
	assert.False(t, ok)
}
