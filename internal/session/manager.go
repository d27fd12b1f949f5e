package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/metrics"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/models"
)

// Session is one connected participant: verified identity, the room it
// joined, and the liveness clock the heartbeat sweep reads.
type Session struct {
	ID       string
	UserID   string
	UserName string
	RoomID   string
	Client   *Client

	lastSeen atomic.Int64
}

// Touch refreshes the liveness deadline. The transport calls it on every
// frame and pong received.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) seen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Manager tracks sessions across rooms and force-leaves the ones that go
// silent past the idle timeout, producing the same user-left broadcasts as
// an explicit leave.
type Manager struct {
	hub         *Hub
	idleTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(hub *Hub, idleTimeout time.Duration, logger *zap.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = time.Minute
	}
	return &Manager{
		hub:         hub,
		idleTimeout: idleTimeout,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Join admits a verified identity into the document's room and returns the
// session plus the init payload (snapshot, revision, members). It fails with
// ErrRoomUnavailable while the room is evicting.
func (m *Manager) Join(ctx context.Context, docID, userID, userName string, client *Client) (*Session, *models.InitResponse, error) {
	room, err := m.hub.GetOrCreate(ctx, docID)
	if err != nil {
		return nil, nil, err
	}

	sess := &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserName: userName,
		RoomID:   docID,
		Client:   client,
	}
	sess.Touch()

	init, err := room.Join(sess.ID, userID, userName, client)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	m.logger.Info("session joined",
		zap.String("roomId", docID),
		zap.String("sessionId", sess.ID),
		zap.String("userId", userID))
	return sess, init, nil
}

// Leave removes the session from its room and broadcasts the departure to
// the remaining members. Idempotent.
func (m *Manager) Leave(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	metrics.ActiveSessions.Dec()

	if room, ok := m.hub.Get(sess.RoomID); ok {
		room.Leave(sessionID)
	}
	sess.Client.Close()
	m.logger.Info("session left",
		zap.String("roomId", sess.RoomID), zap.String("sessionId", sessionID))
}

// Get returns a live session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// Run sweeps for idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []*Session
	for _, sess := range m.sessions {
		if sess.seen().Before(cutoff) {
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.logger.Info("session timed out",
			zap.String("roomId", sess.RoomID), zap.String("sessionId", sess.ID))
		m.Leave(sess.ID)
	}
}
