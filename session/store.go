package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenHashMismatch is returned when a presented refresh-token hash no
// longer matches the stored one: either a replayed old token or a lost
// rotation race. Callers treat it as a security event.
var ErrTokenHashMismatch = errors.New("refresh token hash mismatch")

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when the addressed session record does not exist
// or has already expired.
var ErrNotFound = errors.New("session record not found")

// ErrRecordCorrupt is returned when a stored record blob fails to decode.
var ErrRecordCorrupt = errors.New("session record corrupt")

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
	rotateStatusInvalidBlob int64 = 4
)

// rotateRecordScript performs the single atomic conditional update of the
// rotation protocol: replace hash+expiry iff the stored hash still equals
// the provided hash. A mismatch deletes the record defensively — a replayed
// pre-rotation token must burn the session, and the loser of a concurrent
// rotation race must be forced to re-authenticate rather than retry.
//
// Record layout offsets are fixed (see encoder.go); Lua indices are 1-based:
// version=1, token hash=2..33, device hash=34..65, created=66..73,
// expires=74..81, uid length=82.
const rotateRecordScript = `
local function read_be64(s, i)
  local v = 0
  for off = 0, 7 do
    local b = string.byte(s, i + off)
    if not b then
      return nil
    end
    v = v * 256 + b
  end
  return v
end

local record_key = KEYS[1]
local user_key = KEYS[2]
local session_id = ARGV[1]
local provided_hash = ARGV[2]
local next_hash = ARGV[3]
local next_expiry = ARGV[4]
local now_unix = tonumber(ARGV[5])
local next_ttl_ms = tonumber(ARGV[6])

local data = redis.call("GET", record_key)
if not data then
  return {0}
end

if string.byte(data, 1) ~= 1 or #data < 83 then
  return {4}
end

local expires_at = read_be64(data, 74)
if not expires_at then
  return {4}
end

if expires_at <= now_unix then
  redis.call("DEL", record_key)
  redis.call("SREM", user_key, session_id)
  return {1}
end

if string.sub(data, 2, 33) ~= provided_hash then
  redis.call("DEL", record_key)
  redis.call("SREM", user_key, session_id)
  return {2}
end

local updated = string.sub(data, 1, 1) .. next_hash .. string.sub(data, 34, 73) .. next_expiry .. string.sub(data, 82)
redis.call("SET", record_key, updated, "PX", next_ttl_ms)
return {3, updated}
`

var rotateRecordLua = redis.NewScript(rotateRecordScript)

// Store is the Redis-backed session record store: the only shared mutable
// resource of the engine. It is never read-then-written without the token
// hash being part of the write's filter.
//
//	Docs: docs/session.md
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace. now is injectable for expiry tests;
// nil selects [time.Now].
func NewStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "cs"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) key(userID, sessionID string) string {
	return s.prefix + ":" + userID + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

func (s *Store) replayKey(sessionID string) string {
	return s.prefix + "rp:" + sessionID
}

// Save persists a new [Record] with a key TTL matching its expiry and adds
// the session to the user's index set.
//
//	Performance: 2 Redis commands in one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, r *Record) error {
	ttl := time.Unix(r.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return errors.New("record already expired")
	}

	data, err := Encode(r)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(r.UserID, r.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(r.UserID), r.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Lookup is the only acceptance path for a refresh attempt: one GET, then
// expiry and hash checks against all three coordinates. A hash miss returns
// [ErrTokenHashMismatch] — proof the token was already rotated (replay) or
// is about to lose a race.
//
//	Performance: 1 Redis GET on the hit path.
func (s *Store) Lookup(ctx context.Context, userID, sessionID string, tokenHash [32]byte) (*Record, error) {
	r, err := s.GetReadOnly(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if r.TokenHash != tokenHash {
		return nil, ErrTokenHashMismatch
	}
	return r, nil
}

// GetReadOnly fetches a record without mutating any Redis state. Expired
// records are reported as [ErrNotFound]; deletion is left to the sweeper
// and the key TTL.
func (s *Store) GetReadOnly(ctx context.Context, userID, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(userID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	r.SessionID = sessionID

	if r.UserID != userID || s.now().Unix() >= r.ExpiresAt {
		return nil, ErrNotFound
	}

	return r, nil
}

// GetManyReadOnly fetches multiple records without mutating Redis state.
// Missing, expired, and corrupt entries are skipped.
func (s *Store) GetManyReadOnly(ctx context.Context, userID string, sessionIDs []string) ([]*Record, error) {
	if len(sessionIDs) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.key(userID, sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(sessionIDs))
	nowUnix := s.now().Unix()
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		r, decErr := Decode(data)
		if decErr != nil {
			continue
		}
		r.SessionID = sessionIDs[i]
		if r.UserID != userID || nowUnix >= r.ExpiresAt {
			continue
		}

		records = append(records, r)
	}

	return records, nil
}

// Rotate atomically replaces the record's token hash and expiry via a Lua
// compare-and-swap. Exactly one of any number of concurrent rotation
// attempts presenting the same providedHash can succeed; every loser gets
// [ErrTokenHashMismatch] and the record is gone.
//
//	Performance: 1 Lua EVALSHA.
//	Security: the CAS filter re-requires the pre-rotation hash, so a
//	read-modify-write lost update is impossible by construction.
func (s *Store) Rotate(
	ctx context.Context,
	userID, sessionID string,
	providedHash, nextHash [32]byte,
	nextExpiresAt time.Time,
) (*Record, error) {
	nextTTL := nextExpiresAt.Sub(s.now())
	if nextTTL <= 0 {
		return nil, errors.New("next expiry already passed")
	}

	var expiryBE [8]byte
	binary.BigEndian.PutUint64(expiryBE[:], uint64(nextExpiresAt.Unix()))

	result, err := rotateRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.key(userID, sessionID), s.userKey(userID)},
		sessionID,
		providedHash[:],
		nextHash[:],
		expiryBE[:],
		s.now().Unix(),
		nextTTL.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, ErrNotFound
	case rotateStatusMismatch:
		return nil, ErrTokenHashMismatch
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated record payload", ErrRedisUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid updated record payload", ErrRedisUnavailable)
		}

		r, decErr := Decode(blob)
		if decErr != nil {
			return nil, errors.Join(ErrRecordCorrupt, decErr)
		}
		r.SessionID = sessionID
		return r, nil
	case rotateStatusInvalidBlob:
		return nil, ErrRecordCorrupt
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Delete removes one session record. Idempotent: deleting a record that
// does not exist is a no-op success, not an error.
//
//	Performance: 2 Redis commands in one MULTI/EXEC.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(userID, sessionID))
		pipe.SRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser clears the user's entire session list ("sign out
// everywhere", password change).
//
// ATOMICITY NOTE: the read of the index set and the deletes are separate
// steps; a session created in between is not captured. The stray record
// expires naturally or is caught by the next call — acceptable for
// sign-out-everywhere semantics.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sid := range sessionIDs {
			pipe.Del(ctx, s.key(userID, sid))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ActiveSessionIDs returns the tracked session IDs for a user.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ActiveSessionCount returns the number of tracked session IDs for a user.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// SweepExpired removes records past their expiry and prunes stale index
// entries whose record keys already vanished through TTL. Purely a
// garbage-collection concern: expiry is re-checked at verify time, so a
// stale-but-unswept record can never be used.
//
// This is an O(n) SCAN and must not run on request hot paths.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	removed, err := s.sweepRecords(ctx)
	if err != nil {
		return removed, err
	}

	pruned, err := s.pruneIndexes(ctx)
	return removed + pruned, err
}

func (s *Store) sweepRecords(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	nowUnix := s.now().Unix()

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", 512).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, key := range keys {
			data, getErr := s.redis.Get(ctx, key).Bytes()
			if getErr != nil {
				continue
			}
			r, decErr := Decode(data)
			if decErr != nil || nowUnix >= r.ExpiresAt {
				_, _ = s.redis.Del(ctx, key).Result()
				if decErr == nil {
					_, _ = s.redis.SRem(ctx, s.userKey(r.UserID), sessionIDFromKey(key)).Result()
				}
				removed++
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (s *Store) pruneIndexes(ctx context.Context) (int, error) {
	var (
		cursor uint64
		pruned int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+"u:*", 512).Result()
		if err != nil {
			return pruned, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, userKey := range keys {
			userID := userKey[len(s.prefix)+2:]
			members, memErr := s.redis.SMembers(ctx, userKey).Result()
			if memErr != nil {
				continue
			}
			for _, sid := range members {
				exists, exErr := s.redis.Exists(ctx, s.key(userID, sid)).Result()
				if exErr == nil && exists == 0 {
					if n, remErr := s.redis.SRem(ctx, userKey, sid).Result(); remErr == nil {
						pruned += int(n)
					}
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return pruned, nil
}

func sessionIDFromKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[i+1:]
		}
	}
	return key
}

// TrackReplayAnomaly increments a replay anomaly counter for a session ID.
// Used for audit/ops visibility after a reuse trip; no correctness depends
// on it.
func (s *Store) TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	key := s.replayKey(sessionID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
