package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per document under "doc:{id}".
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func docKey(docID string) string { return "doc:" + docID }

func (s *RedisStore) Load(ctx context.Context, docID string) (*Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, docKey(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", docID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rev, err := strconv.ParseInt(fields["revision"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s has bad revision %q: %w", docID, fields["revision"], err)
	}
	savedAt, _ := time.Parse(time.RFC3339Nano, fields["savedAt"])

	return &Snapshot{
		DocID:    docID,
		Text:     fields["text"],
		Revision: rev,
		SavedAt:  savedAt,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	err := s.rdb.HSet(ctx, docKey(snap.DocID),
		"text", snap.Text,
		"revision", strconv.FormatInt(snap.Revision, 10),
		"savedAt", snap.SavedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.DocID, err)
	}
	return nil
}
