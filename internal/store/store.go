// Package store persists document snapshots keyed by document id. Rooms load
// a snapshot on creation and write one back periodically and on eviction.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("snapshot not found")

type Snapshot struct {
	DocID    string
	Text     string
	Revision int64
	SavedAt  time.Time
}

type SnapshotStore interface {
	Load(ctx context.Context, docID string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}
