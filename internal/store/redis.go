// Package store mirrors room state and player sessions into Redis with TTLs.
// It provides no transactions: room keys are last-writer-wins and each room
// has exactly one writer, so the coordinator's serialization is the only
// mutual exclusion needed.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"hokmd/internal/game"
)

var (
	ErrNotFound     = errors.New("store: record not found")
	ErrUnavailable  = errors.New("store: backend unavailable")
	ErrCorruptState = errors.New("store: corrupt room state")
)

// Persistence retry schedule.
const (
	retryBaseDelay   = 100 * time.Millisecond
	retryMaxDelay    = 5 * time.Second
	minRetryAttempts = 3
)

const (
	defaultRoomTTL           = time.Hour
	defaultSessionTTL        = time.Hour
	defaultHeartbeatInterval = 30 * time.Second
	defaultArchiveSize       = 64
)

// Session is one player's attachment record: which room they sat in, where,
// and when they were last heard from.
type Session struct {
	PlayerID      string
	RoomCode      string
	Seat          int
	Status        string
	LastHeartbeat time.Time
}

// Verdict classifies a session presented for reconnection.
type Verdict string

const (
	VerdictValid       Verdict = "valid"
	VerdictRecoverable Verdict = "recoverable"
	VerdictExpired     Verdict = "expired"
	VerdictMissing     Verdict = "missing"
)

// Options tune TTLs and the session validation windows.
type Options struct {
	RoomTTL           time.Duration
	SessionTTL        time.Duration
	HeartbeatInterval time.Duration
	ArchiveSize       int
	Logger            *slog.Logger
}

// Store is the Redis-backed persistence adapter.
type Store struct {
	client     *redis.Client
	roomTTL    time.Duration
	sessionTTL time.Duration
	heartbeat  time.Duration
	archive    *Archive
	logger     *slog.Logger
}

// New wraps an established Redis client. Zero option fields fall back to the
// defaults.
func New(client *redis.Client, opts Options) *Store {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = defaultRoomTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.ArchiveSize <= 0 {
		opts.ArchiveSize = defaultArchiveSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		client:     client,
		roomTTL:    opts.RoomTTL,
		sessionTTL: opts.SessionTTL,
		heartbeat:  opts.HeartbeatInterval,
		archive:    NewArchive(opts.ArchiveSize),
		logger:     opts.Logger,
	}
}

func roomKey(code string) string {
	return "room:" + code + ":state"
}

func corruptKey(code string) string {
	return "room:" + code + ":corrupt"
}

func sessionKey(playerID string) string {
	return "session:" + playerID
}

// unavailable tags a transport error as ErrUnavailable.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// SaveRoom writes the full serialized board under the room key and refreshes
// its TTL.
func (s *Store) SaveRoom(ctx context.Context, board *game.Board) error {
	data, err := game.EncodeBoard(board)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", board.RoomCode, err)
	}
	if err := s.client.Set(ctx, roomKey(board.RoomCode), data, s.roomTTL).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// LoadRoom reads a room back and validates it. A payload that fails invariant
// checks is quarantined and never resumed: the raw bytes move to the corrupt
// key and the in-memory archive, and the live key is deleted.
func (s *Store) LoadRoom(ctx context.Context, code string) (*game.Board, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	board, decErr := game.DecodeBoard(data)
	if decErr != nil {
		s.quarantine(ctx, code, data, decErr)
		return nil, fmt.Errorf("room %s: %w: %v", code, ErrCorruptState, decErr)
	}
	return board, nil
}

func (s *Store) quarantine(ctx context.Context, code string, payload []byte, cause error) {
	s.archive.Add(code, payload, cause)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, corruptKey(code), payload, s.roomTTL)
	pipe.Del(ctx, roomKey(code))
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("quarantine write failed", "room", code, "error", err)
	}
	s.logger.Error("room state failed validation, quarantined", "room", code, "error", cause)
}

// DeleteRoom removes the room's state and any quarantined copy.
func (s *Store) DeleteRoom(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, roomKey(code), corruptKey(code)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SaveSession upserts the player's session hash and refreshes its TTL. A zero
// LastHeartbeat is stamped with the current time.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	hb := sess.LastHeartbeat
	if hb.IsZero() {
		hb = time.Now()
	}
	key := sessionKey(sess.PlayerID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"room_code", sess.RoomCode,
		"seat", sess.Seat,
		"status", sess.Status,
		"last_heartbeat", hb.UnixNano(),
	)
	pipe.Expire(ctx, key, s.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// LoadSession reads a session hash.
func (s *Store) LoadSession(ctx context.Context, playerID string) (*Session, error) {
	vals, err := s.client.HGetAll(ctx, sessionKey(playerID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	sess := &Session{
		PlayerID: playerID,
		RoomCode: vals["room_code"],
		Status:   vals["status"],
	}
	if seat, convErr := strconv.Atoi(vals["seat"]); convErr == nil {
		sess.Seat = seat
	}
	if nanos, convErr := strconv.ParseInt(vals["last_heartbeat"], 10, 64); convErr == nil {
		sess.LastHeartbeat = time.Unix(0, nanos)
	}
	return sess, nil
}

// TouchHeartbeat stamps last_heartbeat and refreshes the session TTL without
// rewriting the rest of the record.
func (s *Store) TouchHeartbeat(ctx context.Context, playerID string) error {
	key := sessionKey(playerID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return unavailable(err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "last_heartbeat", time.Now().UnixNano())
	pipe.Expire(ctx, key, s.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// MarkDisconnected records the drop but keeps the session until TTL so the
// player can reclaim the seat.
func (s *Store) MarkDisconnected(ctx context.Context, playerID string) error {
	key := sessionKey(playerID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return unavailable(err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	if err := s.client.HSet(ctx, key, "status", game.StatusDisconnected).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// ValidateSession classifies a session for reconnection. A heartbeat within
// one interval is valid; within three intervals is recoverable; older records
// are expired; absent records are missing.
func (s *Store) ValidateSession(ctx context.Context, playerID string) (Verdict, *Session, error) {
	sess, err := s.LoadSession(ctx, playerID)
	if errors.Is(err, ErrNotFound) {
		return VerdictMissing, nil, nil
	}
	if err != nil {
		return VerdictMissing, nil, err
	}

	age := time.Since(sess.LastHeartbeat)
	switch {
	case age <= s.heartbeat:
		return VerdictValid, sess, nil
	case age <= 3*s.heartbeat:
		return VerdictRecoverable, sess, nil
	default:
		return VerdictExpired, sess, nil
	}
}

// DeleteSession removes a session on graceful exit.
func (s *Store) DeleteSession(ctx context.Context, playerID string) error {
	if err := s.client.Del(ctx, sessionKey(playerID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Ping reports whether the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Archive exposes the quarantined payloads for inspection.
func (s *Store) Archive() *Archive {
	return s.archive
}

// Retry runs op with exponential backoff: 100ms doubling to a 5s cap, at
// least three attempts. It gives up early when ctx is done and returns the
// last error either way.
func Retry(ctx context.Context, attempts int, op func() error) error {
	if attempts < minRetryAttempts {
		attempts = minRetryAttempts
	}
	delay := retryBaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return err
}
