package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

// Sessions are stored as hashes under "auth:session:<id>" and indexed per
// owner in the sorted set "auth:sessions:<email>", scored by login time.
// Timestamps are Unix microseconds. State transitions run as Lua scripts so
// check-and-set is atomic on the server.

var createSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'email', ARGV[2], 'client_ip', ARGV[3], 'user_agent', ARGV[4], 'device', ARGV[5],
	'login_at', ARGV[6], 'last_activity', ARGV[6], 'logout_at', '', 'active', '1')
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
return 1
`)

var touchSessionScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'active') ~= '1' then
	return 0
end
local current = tonumber(redis.call('HGET', KEYS[1], 'last_activity')) or 0
if tonumber(ARGV[1]) > current then
	redis.call('HSET', KEYS[1], 'last_activity', ARGV[1])
end
return 1
`)

var deactivateSessionScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'active') ~= '1' then
	return 0
end
redis.call('HSET', KEYS[1], 'active', '0', 'logout_at', ARGV[1])
return 1
`)

// RedisSessionRepo implements domain.SessionRepository using Redis.
type RedisSessionRepo struct {
	client *redis.Client
}

// NewRedisSessionRepo creates a new repository instance.
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

func sessionKey(id string) string {
	return fmt.Sprintf("auth:session:%s", id)
}

func ownerSessionsKey(email string) string {
	return fmt.Sprintf("auth:sessions:%s", normalizeEmail(email))
}

// Create stores a new session. An existing id yields domain.ErrSessionExists.
func (r *RedisSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	email := normalizeEmail(session.Email)
	created, err := createSessionScript.Run(ctx, r.client,
		[]string{sessionKey(session.ID), ownerSessionsKey(email)},
		session.ID, email, session.ClientIP, session.UserAgent, session.Device,
		session.LoginTime.UnixMicro(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	if created == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (r *RedisSessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return decodeSession(id, fields)
}

func (r *RedisSessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	err := touchSessionScript.Run(ctx, r.client, []string{sessionKey(id)}, at.UnixMicro()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	ended, err := deactivateSessionScript.Run(ctx, r.client, []string{sessionKey(id)}, at.UnixMicro()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}
	return ended == 1, nil
}

// DeactivateAll ends every active session of email and returns how many
// this call ended.
func (r *RedisSessionRepo) DeactivateAll(ctx context.Context, email string, at time.Time) (int, error) {
	ids, err := r.client.ZRange(ctx, ownerSessionsKey(email), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	n := 0
	for _, id := range ids {
		ended, err := r.Deactivate(ctx, id, at)
		if err != nil {
			return n, err
		}
		if ended {
			n++
		}
	}
	return n, nil
}

// ListByOwner returns sessions newest first.
func (r *RedisSessionRepo) ListByOwner(ctx context.Context, email string, activeOnly bool) ([]domain.Session, error) {
	ids, err := r.client.ZRevRange(ctx, ownerSessionsKey(email), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		sess, err := decodeSession(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if activeOnly && !sess.Active {
			continue
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

func decodeSession(id string, fields map[string]string) (*domain.Session, error) {
	login, err := parseMicros(fields["login_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	last, err := parseMicros(fields["last_activity"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	sess := &domain.Session{
		ID:           id,
		Email:        fields["email"],
		ClientIP:     fields["client_ip"],
		UserAgent:    fields["user_agent"],
		Device:       fields["device"],
		LoginTime:    login,
		LastActivity: last,
		Active:       fields["active"] == "1",
	}
	if raw := fields["logout_at"]; raw != "" {
		out, err := parseMicros(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt session %s: %w", id, err)
		}
		sess.LogoutTime = &out
	}
	return sess, nil
}

func parseMicros(raw string) (time.Time, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v).UTC(), nil
}
