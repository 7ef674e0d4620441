package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusReuse    int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusRotated  int64 = 3
)

// Revoked rows are kept until natural expiry so reuse stays detectable.
// The script revokes the presented record, links it to its successor,
// and inserts the successor in one atomic step.
const rotateScript = `
local old = redis.call("HGETALL", KEYS[1])
if #old == 0 then
  return {0}
end

local rec = {}
for i = 1, #old, 2 do
  rec[old[i]] = old[i + 1]
end

if rec.revoked == "1" then
  return {1, rec.user_id}
end

if tonumber(rec.expires_at) <= tonumber(ARGV[1]) then
  return {2}
end

redis.call("HSET", KEYS[1], "revoked", "1", "superseded_by", ARGV[3], "updated_at", ARGV[1])
redis.call("HSET", KEYS[2],
  "id", ARGV[2],
  "user_id", rec.user_id,
  "revoked", "0",
  "expires_at", ARGV[4],
  "superseded_by", "",
  "created_at", ARGV[5],
  "updated_at", ARGV[5])
redis.call("PEXPIRE", KEYS[2], tonumber(ARGV[6]))
redis.call("SADD", ARGV[7] .. rec.user_id, ARGV[3])

return {3, rec.user_id}
`

var rotateLua = redis.NewScript(rotateScript)

// RedisStore keeps refresh records as Redis hashes keyed by digest,
// with a per-user index set. Rotation runs through a Lua
// compare-and-swap script, so concurrent redemptions of the same
// secret have exactly one winner.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore]. prefix namespaces all keys.
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "la"
	}
	return &RedisStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStore) recordKey(digest string) string {
	return s.prefix + ":rt:" + digest
}

func (s *RedisStore) userSetPrefix() string {
	return s.prefix + ":rtu:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.userSetPrefix() + userID
}

// Insert persists a freshly minted record with a TTL matching its expiry.
func (s *RedisStore) Insert(ctx context.Context, rec *Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: record already expired", ErrUnavailable)
	}

	key := s.recordKey(rec.Digest)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", rec.ID,
			"user_id", rec.UserID,
			"revoked", boolField(rec.Revoked),
			"expires_at", rec.ExpiresAt.Unix(),
			"superseded_by", rec.SupersededBy,
			"created_at", rec.CreatedAt.Unix(),
			"updated_at", updatedUnix(rec),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.Digest)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Get fetches a record by digest regardless of its state.
func (s *RedisStore) Get(ctx context.Context, digest string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	return decodeRecord(digest, fields)
}

// Rotate atomically supersedes the record for presentedDigest with next.
func (s *RedisStore) Rotate(ctx context.Context, presentedDigest string, next *Record) (string, error) {
	ttl := time.Until(next.ExpiresAt)
	if ttl <= 0 {
		return "", fmt.Errorf("%w: successor already expired", ErrUnavailable)
	}

	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(presentedDigest), s.recordKey(next.Digest)},
		time.Now().Unix(),
		next.ID,
		next.Digest,
		next.ExpiresAt.Unix(),
		next.CreatedAt.Unix(),
		ttl.Milliseconds(),
		s.userSetPrefix(),
	).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return "", fmt.Errorf("%w: invalid rotate script response", ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return "", fmt.Errorf("%w: invalid rotate script status", ErrUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return "", ErrNotFound
	case rotateStatusReuse:
		return scriptString(parts, 1), ErrReuse
	case rotateStatusExpired:
		return "", ErrExpired
	case rotateStatusRotated:
		userID := scriptString(parts, 1)
		if userID == "" {
			return "", fmt.Errorf("%w: missing user in rotate response", ErrUnavailable)
		}
		next.UserID = userID
		return userID, nil
	default:
		return "", fmt.Errorf("%w: unknown rotate script status", ErrUnavailable)
	}
}

// Revoke marks a single record revoked. Missing records are a no-op.
func (s *RedisStore) Revoke(ctx context.Context, digest string) error {
	key := s.recordKey(digest)
	exists, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists == 0 {
		return nil
	}

	if err := s.redis.HSet(ctx, key, "revoked", "1", "updated_at", time.Now().Unix()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeChain revokes the record for digest and every successor
// reachable through superseded_by links. The walk is bounded by a
// visited set so a corrupted pointer cycle cannot loop forever.
func (s *RedisStore) RevokeChain(ctx context.Context, digest string) (int, error) {
	var revoked int
	visited := make(map[string]struct{})

	for digest != "" {
		if _, seen := visited[digest]; seen {
			break
		}
		visited[digest] = struct{}{}

		key := s.recordKey(digest)
		fields, err := s.redis.HMGet(ctx, key, "revoked", "superseded_by").Result()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if fields[0] == nil {
			break
		}

		if fields[0] != "1" {
			if err := s.redis.HSet(ctx, key, "revoked", "1", "updated_at", time.Now().Unix()).Err(); err != nil {
				return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			revoked++
		}

		digest, _ = fields[1].(string)
	}

	return revoked, nil
}

// RevokeAllForUser revokes every live record belonging to the user.
// Expired index entries are pruned as a side effect.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	digests, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var (
		revoked int
		failed  int
		stale   []interface{}
	)
	for _, digest := range digests {
		key := s.recordKey(digest)
		revokedField, err := s.redis.HGet(ctx, key, "revoked").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, digest)
				continue
			}
			failed++
			continue
		}
		if revokedField == "1" {
			continue
		}
		if err := s.redis.HSet(ctx, key, "revoked", "1", "updated_at", time.Now().Unix()).Err(); err != nil {
			failed++
			continue
		}
		revoked++
	}

	if len(stale) > 0 {
		// Best effort: a failed prune leaves dead index entries, nothing worse.
		_ = s.redis.SRem(ctx, userKey, stale...).Err()
	}

	if failed > 0 {
		return revoked, fmt.Errorf("%w: %d of %d records unreachable",
			ErrPartialRevocation, failed, failed+revoked)
	}
	return revoked, nil
}

// ActiveCountForUser returns the number of live records for a user.
func (s *RedisStore) ActiveCountForUser(ctx context.Context, userID string) (int, error) {
	digests, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now().Unix()
	var count int
	for _, digest := range digests {
		fields, err := s.redis.HMGet(ctx, s.recordKey(digest), "revoked", "expires_at").Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if fields[0] == nil || fields[0] == "1" {
			continue
		}
		expires, _ := fields[1].(string)
		if exp, convErr := strconv.ParseInt(expires, 10, 64); convErr == nil && exp > now {
			count++
		}
	}

	return count, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func updatedUnix(rec *Record) int64 {
	if rec.UpdatedAt.IsZero() {
		return rec.CreatedAt.Unix()
	}
	return rec.UpdatedAt.Unix()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeRecord(digest string, fields map[string]string) (*Record, error) {
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt expires_at for record", ErrUnavailable)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt created_at for record", ErrUnavailable)
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		updated = created
	}

	return &Record{
		ID:           fields["id"],
		UserID:       fields["user_id"],
		Digest:       digest,
		Revoked:      fields["revoked"] == "1",
		ExpiresAt:    time.Unix(expires, 0),
		SupersededBy: fields["superseded_by"],
		CreatedAt:    time.Unix(created, 0),
		UpdatedAt:    time.Unix(updated, 0),
	}, nil
}

func scriptString(parts []interface{}, idx int) string {
	if len(parts) <= idx {
		return ""
	}
	switch v := parts[idx].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
