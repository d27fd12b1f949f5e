package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/metrics"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/store"
)

// HubConfig controls room lifecycle. EvictGrace is how long a room may sit
// empty before its snapshot is persisted and the room is dropped;
// PersistInterval paces background snapshots of dirty rooms.
type HubConfig struct {
	Room            RoomConfig
	EvictGrace      time.Duration
	PersistInterval time.Duration
}

func (c HubConfig) withDefaults() HubConfig {
	if c.EvictGrace <= 0 {
		c.EvictGrace = time.Minute
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = 30 * time.Second
	}
	return c
}

// Hub owns the one authoritative Room per document id. That single authority
// is what makes edit sequencing well-defined: no two independent copies ever
// assign revisions for the same document.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	store  store.SnapshotStore
	cfg    HubConfig
	logger *zap.Logger
}

func NewHub(snapshots store.SnapshotStore, cfg HubConfig, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]*Room),
		store:  snapshots,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// GetOrCreate returns the authoritative room for a document, creating it
// from the persisted snapshot (or empty text) on first join. The registry
// lock covers only the map lookup and insert, never a snapshot load or a
// submission.
func (h *Hub) GetOrCreate(ctx context.Context, docID string) (*Room, error) {
	h.mu.RLock()
	room, ok := h.rooms[docID]
	h.mu.RUnlock()
	if ok {
		return room, nil
	}

	text, revision := "", int64(0)
	snap, err := h.store.Load(ctx, docID)
	switch {
	case err == nil:
		text, revision = snap.Text, snap.Revision
	case errors.Is(err, store.ErrNotFound):
		// brand-new document
	default:
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[docID]; ok {
		return room, nil
	}
	room = NewRoom(docID, text, revision, h.cfg.Room, h.logger)
	h.rooms[docID] = room
	metrics.ActiveRooms.Inc()
	h.logger.Info("room created",
		zap.String("roomId", docID), zap.Int64("revision", revision))
	return room, nil
}

func (h *Hub) Get(docID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[docID]
	return room, ok
}

func (h *Hub) list() []*Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		out = append(out, room)
	}
	return out
}

// Run drives periodic persistence and eviction until ctx is cancelled, then
// closes every room and persists its final snapshot.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *Hub) sweep(ctx context.Context) {
	for _, room := range h.list() {
		state, err := room.maintenance()
		if err != nil {
			// already closed elsewhere; drop the registry entry
			h.remove(room.ID)
			continue
		}
		if state.dirty {
			// stays dirty on a failed save, so the next sweep retries
			if h.persist(ctx, room.ID, state) == nil {
				room.confirmPersisted(state.revision)
			}
		}
		if state.members == 0 && !state.emptySince.IsZero() &&
			time.Since(state.emptySince) >= h.cfg.EvictGrace {
			h.Evict(ctx, room.ID)
		}
	}
}

// Evict persists a room's snapshot and removes it from the registry. Joins
// racing with eviction fail with ErrRoomUnavailable and may re-join, which
// recreates the room from the persisted snapshot.
func (h *Hub) Evict(ctx context.Context, docID string) {
	room, ok := h.Get(docID)
	if !ok {
		return
	}
	state, closed := room.Close()
	if closed {
		h.persist(ctx, docID, state)
		h.logger.Info("room evicted",
			zap.String("roomId", docID), zap.Int64("revision", state.revision))
	}
	h.remove(docID)
}

func (h *Hub) remove(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[docID]; ok {
		delete(h.rooms, docID)
		metrics.ActiveRooms.Dec()
	}
}

func (h *Hub) persist(ctx context.Context, docID string, state maintState) error {
	err := h.store.Save(ctx, &store.Snapshot{
		DocID:    docID,
		Text:     state.doc,
		Revision: state.revision,
		SavedAt:  time.Now(),
	})
	if err != nil {
		h.logger.Error("persist snapshot failed",
			zap.String("roomId", docID), zap.Error(err))
	}
	return err
}

func (h *Hub) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, room := range h.list() {
		if state, closed := room.Close(); closed {
			h.persist(ctx, room.ID, state)
		}
		h.remove(room.ID)
	}
}
