package models

import (
	"encoding/json"
	"errors"
	"time"
)

// OpKind discriminates the two edit operations the engine understands.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// Op is a proposed edit against a known document revision. Pos and Len
// count characters (runes), not bytes.
type Op struct {
	Kind OpKind `json:"kind"`
	Pos  int    `json:"pos"`
	Text string `json:"text,omitempty"` // insert payload
	Len  int    `json:"len,omitempty"`  // delete length, in runes
}

// Validate checks the op's shape before it reaches a room. Range checks
// against the live document happen after transformation.
func (op Op) Validate() error {
	if op.Pos < 0 {
		return errors.New("negative position")
	}
	switch op.Kind {
	case OpInsert:
		if op.Text == "" {
			return errors.New("insert without text")
		}
		if op.Len != 0 {
			return errors.New("insert with delete length")
		}
	case OpDelete:
		if op.Len <= 0 {
			return errors.New("delete without length")
		}
		if op.Text != "" {
			return errors.New("delete with text payload")
		}
	default:
		return errors.New("unknown op kind")
	}
	return nil
}

// CommittedOp is an Op after transformation, sequenced into the room's
// canonical history.
type CommittedOp struct {
	Op          Op        `json:"op"`
	Revision    int64     `json:"revision"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	CommittedAt time.Time `json:"committedAt"`
}

// Member is one connected participant as seen by the other room members.
type Member struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Line      int    `json:"line"`
}

// PresenceEvent is the ephemeral cursor attribution pushed to room members.
// It never enters the edit log.
type PresenceEvent struct {
	RoomID    string `json:"roomId,omitempty"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Line      int    `json:"line"`
}

/*** WebSocket frames ***/

// ClientFrame is the envelope for every client-to-server message. Payloads
// are decoded per type at ingress; anything outside the enumerated shapes is
// rejected without touching room state.
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerFrame is the envelope for every server-to-client message.
type ServerFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	// client -> server
	FrameJoin   = "join"
	FrameEdit   = "edit"
	FrameCursor = "cursor"
	FrameLeave  = "leave"
	FrameResync = "resync"
	FramePing   = "ping"

	// server -> client
	FrameInit       = "init"
	FrameOp         = "op"
	FrameAck        = "ack"
	FramePresence   = "presence"
	FrameUserJoined = "user_joined"
	FrameUserLeft   = "user_left"
	FramePong       = "pong"
	FrameError      = "error"
)

type JoinRequest struct {
	DocumentID string `json:"documentId"`
	Token      string `json:"token"`
}

func (r JoinRequest) Validate() error {
	if r.DocumentID == "" {
		return errors.New("missing documentId")
	}
	if r.Token == "" {
		return errors.New("missing token")
	}
	return nil
}

type InitResponse struct {
	SessionID string   `json:"sessionId"`
	Doc       string   `json:"doc"`
	Revision  int64    `json:"revision"`
	Members   []Member `json:"members"`
}

type EditRequest struct {
	Op           Op     `json:"op"`
	BaseRevision int64  `json:"baseRevision"`
	ClientSeq    uint64 `json:"clientSeq"`
}

func (r EditRequest) Validate() error {
	if r.BaseRevision < 0 {
		return errors.New("negative baseRevision")
	}
	return r.Op.Validate()
}

// OpBroadcast relays a committed op to the other room members.
type OpBroadcast struct {
	Op        Op     `json:"op"`
	Revision  int64  `json:"revision"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// EditAck confirms a submission to its author with the assigned revision.
type EditAck struct {
	Revision  int64  `json:"revision"`
	ClientSeq uint64 `json:"clientSeq"`
}

type CursorRequest struct {
	Line int `json:"line"`
}

func (r CursorRequest) Validate() error {
	if r.Line < 0 {
		return errors.New("negative line")
	}
	return nil
}

type UserJoined struct {
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId"`
	UserName  string   `json:"userName"`
	Members   []Member `json:"members"`
}

type UserLeft struct {
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId"`
	Members   []Member `json:"members"`
}

type ResyncResponse struct {
	Doc      string `json:"doc"`
	Revision int64  `json:"revision"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

/*** REST payloads ***/

// RoomStatus is the read-only view served by GET /api/v1/rooms/{id}.
type RoomStatus struct {
	ID          string    `json:"id"`
	Revision    int64     `json:"revision"`
	MemberCount int       `json:"memberCount"`
	Members     []Member  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Suggestion is one finding from the AI review service. Applying Fix is not
// a special path: the client submits it as an ordinary edit.
type Suggestion struct {
	Line     int    `json:"line"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
	Fix      string `json:"fix,omitempty"`
}

type ReviewRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type ReviewResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}
