// Package redisstore persists per-video chat sessions in redis.
//
// The store is deliberately session-scoped: records carry a TTL so a
// conversation survives panel close/reopen but not a long dormancy,
// mirroring session-lifetime storage. The long-lived credential lives
// in the durable keystore, never here.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "panel:session:"

// ChatMessage is one turn of the conversation. Immutable once created;
// ordered by position in the history slice.
type ChatMessage struct {
	Sender string `json:"sender"` // "user" or "bot"
	Text   string `json:"text"`
}

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// VideoSession is the per-video bundle of transcript, metadata and
// accumulated conversation. Exactly one exists per video id; Save
// overwrites the prior value.
type VideoSession struct {
	VideoID     string        `json:"-"`
	Transcript  string        `json:"transcript"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	History     []ChatMessage `json:"history"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Load returns the session for the id, or (nil, nil) if absent.
func (s *Store) Load(ctx context.Context, videoID string) (*VideoSession, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+videoID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess VideoSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	sess.VideoID = videoID
	return &sess, nil
}

// Save overwrites the record for the session's video id and refreshes
// its TTL. Concurrent panels on the same id race with last-write-wins.
func (s *Store) Save(ctx context.Context, sess *VideoSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+sess.VideoID, raw, s.ttl).Err()
}

// Clear removes the record for exactly one video id.
func (s *Store) Clear(ctx context.Context, videoID string) error {
	return s.rdb.Del(ctx, keyPrefix+videoID).Err()
}
