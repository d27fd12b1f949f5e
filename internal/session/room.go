package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/metrics"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/models"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/ot"
)

// RoomConfig bounds the per-recipient outbound queue and the retained edit
// log. Log entries beyond the window are folded into the snapshot; a client
// still referencing them is forced to resync.
type RoomConfig struct {
	QueueSize int
	LogWindow int
}

func (c RoomConfig) withDefaults() RoomConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.LogWindow <= 0 {
		c.LogWindow = 1024
	}
	return c
}

type member struct {
	client   *Client
	userID   string
	userName string
	line     int

	// dedupe window for client retries; zero means unsequenced
	lastSeq    uint64
	lastCommit models.CommittedOp
}

// Room holds the authoritative state for one shared document. All mutation
// goes through the inbox consumed by a single goroutine, which is what makes
// the transform-then-commit step atomic.
type Room struct {
	ID        string
	createdAt time.Time
	inbox     chan roomMsg
	cfg       RoomConfig
	logger    *zap.Logger

	postMu sync.RWMutex
	closed bool

	// owned by run()
	doc        string
	revision   int64
	logFloor   int64 // log holds revisions (logFloor, revision]
	log        []models.CommittedOp
	members    map[string]*member
	dirty      bool
	emptySince time.Time
}

/*** inbox variants ***/

type roomMsg interface{ isRoomMsg() }

type joinMsg struct {
	sessionID string
	userID    string
	userName  string
	client    *Client
	reply     chan joinReply
}

type joinReply struct {
	init *models.InitResponse
	err  error
}

type leaveMsg struct {
	sessionID string
	reply     chan struct{}
}

type submitMsg struct {
	sessionID string
	req       models.EditRequest
	reply     chan submitReply
}

type submitReply struct {
	committed models.CommittedOp
	err       error
}

type cursorMsg struct {
	sessionID string
	line      int
}

type resyncMsg struct {
	reply chan models.ResyncResponse
}

type statusMsg struct {
	reply chan models.RoomStatus
}

// maintMsg serves the registry's janitor: a snapshot for persistence plus
// the occupancy data eviction decisions need.
type maintMsg struct {
	reply chan maintState
}

// persistedMsg reports that the snapshot taken at revision was saved. The
// dirty flag clears only if no edit committed in the meantime.
type persistedMsg struct {
	revision int64
}

type maintState struct {
	doc        string
	revision   int64
	members    int
	dirty      bool
	emptySince time.Time
}

type closeMsg struct {
	reply chan maintState
}

func (joinMsg) isRoomMsg()      {}
func (leaveMsg) isRoomMsg()     {}
func (submitMsg) isRoomMsg()    {}
func (cursorMsg) isRoomMsg()    {}
func (resyncMsg) isRoomMsg()    {}
func (statusMsg) isRoomMsg()    {}
func (maintMsg) isRoomMsg()     {}
func (persistedMsg) isRoomMsg() {}
func (closeMsg) isRoomMsg()     {}

// NewRoom creates a room seeded with a persisted snapshot (empty text and
// revision 0 for a brand-new document) and starts its worker.
func NewRoom(id, text string, revision int64, cfg RoomConfig, logger *zap.Logger) *Room {
	r := &Room{
		ID:         id,
		createdAt:  time.Now(),
		inbox:      make(chan roomMsg, 64),
		cfg:        cfg.withDefaults(),
		logger:     logger.With(zap.String("roomId", id)),
		doc:        text,
		revision:   revision,
		logFloor:   revision,
		members:    make(map[string]*member),
		emptySince: time.Now(),
	}
	go r.run()
	return r
}

func (r *Room) post(m roomMsg) error {
	r.postMu.RLock()
	defer r.postMu.RUnlock()
	if r.closed {
		return ErrRoomUnavailable
	}
	r.inbox <- m
	return nil
}

/*** public operations, each a round trip through the worker ***/

func (r *Room) Join(sessionID, userID, userName string, client *Client) (*models.InitResponse, error) {
	reply := make(chan joinReply, 1)
	if err := r.post(joinMsg{sessionID, userID, userName, client, reply}); err != nil {
		return nil, err
	}
	res := <-reply
	return res.init, res.err
}

// Leave is idempotent; it returns once the departure has been broadcast.
func (r *Room) Leave(sessionID string) {
	reply := make(chan struct{}, 1)
	if err := r.post(leaveMsg{sessionID, reply}); err != nil {
		return
	}
	<-reply
}

// Submit orders one edit into the room's canonical history. The op is
// transformed against everything committed since its base revision, applied,
// and broadcast to the other members; the committed op is returned to the
// author.
func (r *Room) Submit(sessionID string, req models.EditRequest) (models.CommittedOp, error) {
	reply := make(chan submitReply, 1)
	if err := r.post(submitMsg{sessionID, req, reply}); err != nil {
		return models.CommittedOp{}, err
	}
	res := <-reply
	return res.committed, res.err
}

// UpdateCursor records the session's current line, latest wins. Best-effort:
// delivery failures never affect document convergence.
func (r *Room) UpdateCursor(sessionID string, line int) {
	_ = r.post(cursorMsg{sessionID, line})
}

// Resync returns the authoritative snapshot and revision.
func (r *Room) Resync() (models.ResyncResponse, error) {
	reply := make(chan models.ResyncResponse, 1)
	if err := r.post(resyncMsg{reply}); err != nil {
		return models.ResyncResponse{}, err
	}
	return <-reply, nil
}

func (r *Room) Status() (models.RoomStatus, error) {
	reply := make(chan models.RoomStatus, 1)
	if err := r.post(statusMsg{reply}); err != nil {
		return models.RoomStatus{}, err
	}
	return <-reply, nil
}

func (r *Room) maintenance() (maintState, error) {
	reply := make(chan maintState, 1)
	if err := r.post(maintMsg{reply}); err != nil {
		return maintState{}, err
	}
	return <-reply, nil
}

func (r *Room) confirmPersisted(revision int64) {
	_ = r.post(persistedMsg{revision})
}

// Close stops the worker and returns the final snapshot for persistence.
// Joins and submits fail with ErrRoomUnavailable from this point on.
func (r *Room) Close() (maintState, bool) {
	r.postMu.Lock()
	if r.closed {
		r.postMu.Unlock()
		return maintState{}, false
	}
	r.closed = true
	r.postMu.Unlock()

	reply := make(chan maintState, 1)
	r.inbox <- closeMsg{reply}
	return <-reply, true
}

/*** worker ***/

func (r *Room) run() {
	for m := range r.inbox {
		switch msg := m.(type) {
		case joinMsg:
			msg.reply <- r.handleJoin(msg)
		case leaveMsg:
			r.removeMember(msg.sessionID)
			msg.reply <- struct{}{}
		case submitMsg:
			msg.reply <- r.handleSubmit(msg)
		case cursorMsg:
			r.handleCursor(msg)
		case resyncMsg:
			msg.reply <- models.ResyncResponse{Doc: r.doc, Revision: r.revision}
		case statusMsg:
			msg.reply <- models.RoomStatus{
				ID:          r.ID,
				Revision:    r.revision,
				MemberCount: len(r.members),
				Members:     r.memberList(),
				CreatedAt:   r.createdAt,
			}
		case maintMsg:
			msg.reply <- r.maintState()
		case persistedMsg:
			if r.revision == msg.revision {
				r.dirty = false
			}
		case closeMsg:
			for _, mem := range r.members {
				mem.client.Close()
			}
			r.members = map[string]*member{}
			msg.reply <- r.maintState()
			return
		}
	}
}

func (r *Room) maintState() maintState {
	return maintState{
		doc:        r.doc,
		revision:   r.revision,
		members:    len(r.members),
		dirty:      r.dirty,
		emptySince: r.emptySince,
	}
}

func (r *Room) memberList() []models.Member {
	out := make([]models.Member, 0, len(r.members))
	for id, mem := range r.members {
		out = append(out, models.Member{
			SessionID: id,
			UserID:    mem.userID,
			UserName:  mem.userName,
			Line:      mem.line,
		})
	}
	return out
}

func (r *Room) handleJoin(msg joinMsg) joinReply {
	r.members[msg.sessionID] = &member{
		client:   msg.client,
		userID:   msg.userID,
		userName: msg.userName,
	}
	r.emptySince = time.Time{}

	init := &models.InitResponse{
		SessionID: msg.sessionID,
		Doc:       r.doc,
		Revision:  r.revision,
		Members:   r.memberList(),
	}
	// The snapshot goes out from the worker, ahead of any commit that could
	// otherwise reach this member's queue first.
	msg.client.Enqueue(models.ServerFrame{Type: models.FrameInit, Data: init})
	r.broadcastExcept(msg.sessionID, models.ServerFrame{
		Type: models.FrameUserJoined,
		Data: models.UserJoined{
			SessionID: msg.sessionID,
			UserID:    msg.userID,
			UserName:  msg.userName,
			Members:   init.Members,
		},
	})
	return joinReply{init: init}
}

func (r *Room) removeMember(sessionID string) {
	mem, ok := r.members[sessionID]
	if !ok {
		return
	}
	delete(r.members, sessionID)
	if len(r.members) == 0 {
		r.emptySince = time.Now()
	}
	r.broadcastExcept(sessionID, models.ServerFrame{
		Type: models.FrameUserLeft,
		Data: models.UserLeft{
			SessionID: sessionID,
			UserID:    mem.userID,
			Members:   r.memberList(),
		},
	})
}

func (r *Room) handleSubmit(msg submitMsg) submitReply {
	mem, ok := r.members[msg.sessionID]
	if !ok {
		return submitReply{err: ErrNotMember}
	}
	req := msg.req
	if req.ClientSeq != 0 && req.ClientSeq <= mem.lastSeq {
		// client retry of a frame that already committed; re-ack it
		return submitReply{committed: mem.lastCommit}
	}
	if err := req.Validate(); err != nil {
		return submitReply{err: fmt.Errorf("%w: %v", ErrInvalidOp, err)}
	}
	if req.BaseRevision > r.revision {
		return submitReply{err: fmt.Errorf("%w: base revision %d ahead of room revision %d",
			ErrInvalidOp, req.BaseRevision, r.revision)}
	}
	if req.BaseRevision < r.logFloor {
		metrics.ForcedResyncs.Inc()
		return submitReply{err: ErrStaleClient}
	}

	behind := r.log[req.BaseRevision-r.logFloor:]
	op := ot.TransformAgainst(req.Op, behind)
	metrics.TransformedOps.Add(float64(len(behind)))

	doc, err := ot.Apply(r.doc, op)
	if err != nil {
		return submitReply{err: fmt.Errorf("%w: %v", ErrInvalidOp, err)}
	}

	r.doc = doc
	r.revision++
	committed := models.CommittedOp{
		Op:          op,
		Revision:    r.revision,
		SessionID:   msg.sessionID,
		UserID:      mem.userID,
		CommittedAt: time.Now(),
	}
	r.log = append(r.log, committed)
	r.compact()
	r.dirty = true
	if req.ClientSeq != 0 {
		mem.lastSeq = req.ClientSeq
		mem.lastCommit = committed
	}
	metrics.CommittedOps.Inc()

	r.broadcastExcept(msg.sessionID, models.ServerFrame{
		Type: models.FrameOp,
		Data: models.OpBroadcast{
			Op:        committed.Op,
			Revision:  committed.Revision,
			SessionID: committed.SessionID,
			UserID:    committed.UserID,
		},
	})
	return submitReply{committed: committed}
}

func (r *Room) compact() {
	if n := len(r.log) - r.cfg.LogWindow; n > 0 {
		r.log = append(r.log[:0:0], r.log[n:]...)
		r.logFloor = r.log[0].Revision - 1
	}
}

func (r *Room) handleCursor(msg cursorMsg) {
	mem, ok := r.members[msg.sessionID]
	if !ok {
		return
	}
	mem.line = msg.line
	r.broadcastExcept(msg.sessionID, models.ServerFrame{
		Type: models.FramePresence,
		Data: models.PresenceEvent{
			RoomID:    r.ID,
			SessionID: msg.sessionID,
			UserID:    mem.userID,
			UserName:  mem.userName,
			Line:      msg.line,
		},
	})
}

// broadcastExcept fans a frame out to every member but one, in commit order
// for ops since it runs on the worker. A recipient whose queue overflows is
// dropped on the spot; the room and the other members are unaffected.
func (r *Room) broadcastExcept(exceptID string, frame models.ServerFrame) {
	var dropped []string
	for id, mem := range r.members {
		if id == exceptID {
			continue
		}
		if !mem.client.Enqueue(frame) {
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		mem := r.members[id]
		if mem == nil {
			continue
		}
		metrics.OverflowDisconnects.Inc()
		r.logger.Warn("dropping slow recipient",
			zap.String("sessionId", id), zap.Int64("revision", r.revision))
		mem.client.Close()
		r.removeMember(id)
	}
}
