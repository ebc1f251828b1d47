package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

func newTestRedisSessionRepo(t *testing.T) *RedisSessionRepo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionRepo(client)
}

func testSession(id, email string, login time.Time) *domain.Session {
	return &domain.Session{
		ID:           id,
		Email:        email,
		ClientIP:     "10.0.0.1",
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64)",
		Device:       "Desktop",
		LoginTime:    login,
		LastActivity: login,
		Active:       true,
	}
}

func TestRedisSessionRepo_CreateAndGet(t *testing.T) {
	repo := newTestRedisSessionRepo(t)
	ctx := context.Background()
	login := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, testSession("s1", "Alice@X.com", login)))
	assert.ErrorIs(t, repo.Create(ctx, testSession("s1", "alice@x.com", login)), domain.ErrSessionExists)

	sess, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", sess.Email)
	assert.Equal(t, "10.0.0.1", sess.ClientIP)
	assert.Equal(t, "Desktop", sess.Device)
	assert.True(t, sess.Active)
	assert.True(t, login.Equal(sess.LoginTime))
	assert.True(t, login.Equal(sess.LastActivity))
	assert.Nil(t, sess.LogoutTime)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisSessionRepo_TouchIsMonotonic(t *testing.T) {
	repo := newTestRedisSessionRepo(t)
	ctx := context.Background()
	login := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, testSession("s1", "a@x.com", login)))

	later := login.Add(10 * time.Minute)
	require.NoError(t, repo.Touch(ctx, "s1", later))
	require.NoError(t, repo.Touch(ctx, "s1", login.Add(time.Minute)))

	sess, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, later.Equal(sess.LastActivity))

	// Unknown sessions are ignored.
	require.NoError(t, repo.Touch(ctx, "missing", later))
}

func TestRedisSessionRepo_DeactivateIsTerminal(t *testing.T) {
	repo := newTestRedisSessionRepo(t)
	ctx := context.Background()
	login := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, testSession("s1", "a@x.com", login)))

	out := login.Add(time.Hour)
	ended, err := repo.Deactivate(ctx, "s1", out)
	require.NoError(t, err)
	assert.True(t, ended)

	ended, err = repo.Deactivate(ctx, "s1", out.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ended)

	require.NoError(t, repo.Touch(ctx, "s1", out.Add(2*time.Hour)))

	sess, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, sess.Active)
	require.NotNil(t, sess.LogoutTime)
	assert.True(t, out.Equal(*sess.LogoutTime))
	assert.True(t, login.Equal(sess.LastActivity))

	ended, err = repo.Deactivate(ctx, "missing", out)
	require.NoError(t, err)
	assert.False(t, ended)
}

func TestRedisSessionRepo_ListAndDeactivateAll(t *testing.T) {
	repo := newTestRedisSessionRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, testSession("s1", "a@x.com", base)))
	require.NoError(t, repo.Create(ctx, testSession("s2", "a@x.com", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, testSession("s3", "a@x.com", base.Add(2*time.Minute))))
	require.NoError(t, repo.Create(ctx, testSession("other", "b@x.com", base)))

	_, err := repo.Deactivate(ctx, "s2", base.Add(time.Hour))
	require.NoError(t, err)

	all, err := repo.ListByOwner(ctx, "A@x.com", false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"s3", "s2", "s1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	active, err := repo.ListByOwner(ctx, "a@x.com", true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "s3", active[0].ID)
	assert.Equal(t, "s1", active[1].ID)

	n, err := repo.DeactivateAll(ctx, "a@x.com", base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err = repo.ListByOwner(ctx, "a@x.com", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	other, err := repo.Get(ctx, "other")
	require.NoError(t, err)
	assert.True(t, other.Active)

	none, err := repo.ListByOwner(ctx, "nobody@x.com", false)
	require.NoError(t, err)
	assert.Empty(t, none)
}
