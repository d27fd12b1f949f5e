package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/models"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/review"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/session"
	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/utils"
)

const (
	joinWait      = 10 * time.Second
	readWait      = 90 * time.Second
	maxFrameBytes = 1 << 20
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Handlers struct {
	logger    *zap.Logger
	hub       *session.Hub
	manager   *session.Manager
	reviewer  *review.Client
	jwtSecret []byte
	queueSize int
}

func NewHandlers(logger *zap.Logger, hub *session.Hub, manager *session.Manager, reviewer *review.Client, jwtSecret []byte, queueSize int) *Handlers {
	return &Handlers{
		logger:    logger,
		hub:       hub,
		manager:   manager,
		reviewer:  reviewer,
		jwtSecret: jwtSecret,
		queueSize: queueSize,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// RoomStatus reports a live room's revision and membership.
func (h *Handlers) RoomStatus(w http.ResponseWriter, r *http.Request) {
	room, ok := h.hub.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	status, err := room.Status()
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, status)
}

// ReviewRoom sends the room's current text to the AI review service and
// returns its suggestions. Applying a fix is not a special path: the client
// submits it as an ordinary edit over the WebSocket.
func (h *Handlers) ReviewRoom(w http.ResponseWriter, r *http.Request) {
	if h.reviewer == nil {
		http.Error(w, "review service not configured", http.StatusServiceUnavailable)
		return
	}
	room, ok := h.hub.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := room.Resync()
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	suggestions, err := h.reviewer.Review(r.Context(), req.Language, snap.Doc)
	if err != nil {
		h.logger.Error("review request failed", zap.Error(err))
		http.Error(w, "review service error", http.StatusBadGateway)
		return
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	writeJSON(w, models.ReviewResponse{Suggestions: suggestions})
}

/*** Collab WebSocket: join handshake + edit/cursor/resync loop ***/

func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := session.NewClient(conn, h.queueSize)
	client.Start()
	defer client.Close()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(joinWait))

	var frame models.ClientFrame
	if err := conn.ReadJSON(&frame); err != nil || frame.Type != models.FrameJoin {
		client.Enqueue(errFrame("expected_join", ""))
		return
	}
	var joinReq models.JoinRequest
	if err := json.Unmarshal(frame.Data, &joinReq); err != nil {
		client.Enqueue(errFrame("bad_join", err.Error()))
		return
	}
	if joinReq.DocumentID == "" {
		joinReq.DocumentID = docID
	}
	if err := joinReq.Validate(); err != nil || joinReq.DocumentID != docID {
		client.Enqueue(errFrame("bad_join", "document id mismatch"))
		return
	}
	claims, err := utils.ParseIdentity(h.jwtSecret, joinReq.Token)
	if err != nil {
		client.Enqueue(errFrame("unauthorized", ""))
		return
	}

	// The room worker sends the init frame itself, before any later commit
	// can be broadcast to this member.
	sess, _, err := h.manager.Join(r.Context(), docID, claims.UserID, claims.UserName, client)
	if err != nil {
		if errors.Is(err, session.ErrRoomUnavailable) {
			client.Enqueue(errFrame("room_unavailable", ""))
		} else {
			h.logger.Error("join failed", zap.String("roomId", docID), zap.Error(err))
			client.Enqueue(errFrame("internal", ""))
		}
		return
	}
	defer h.manager.Leave(sess.ID)

	room, ok := h.hub.Get(docID)
	if !ok {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		sess.Touch()
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		var frame models.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		sess.Touch()
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		switch frame.Type {
		case models.FrameEdit:
			var req models.EditRequest
			if err := json.Unmarshal(frame.Data, &req); err != nil {
				client.Enqueue(errFrame("bad_edit", err.Error()))
				continue
			}
			h.handleEdit(client, room, sess, req)

		case models.FrameCursor:
			var req models.CursorRequest
			if err := json.Unmarshal(frame.Data, &req); err != nil || req.Validate() != nil {
				client.Enqueue(errFrame("bad_cursor", ""))
				continue
			}
			room.UpdateCursor(sess.ID, req.Line)

		case models.FrameResync:
			snap, err := room.Resync()
			if err != nil {
				client.Enqueue(errFrame("room_unavailable", ""))
				return
			}
			client.Enqueue(models.ServerFrame{Type: models.FrameResync, Data: snap})

		case models.FramePing:
			client.Enqueue(models.ServerFrame{Type: models.FramePong})

		case models.FrameLeave:
			return

		default:
			client.Enqueue(errFrame("unknown_type", frame.Type))
		}
	}
}

func (h *Handlers) handleEdit(client *session.Client, room *session.Room, sess *session.Session, req models.EditRequest) {
	committed, err := room.Submit(sess.ID, req)
	switch {
	case err == nil:
		client.Enqueue(models.ServerFrame{
			Type: models.FrameAck,
			Data: models.EditAck{Revision: committed.Revision, ClientSeq: req.ClientSeq},
		})
	case errors.Is(err, session.ErrStaleClient):
		// recoverable: hand the client a fresh snapshot instead of the op
		snap, rerr := room.Resync()
		if rerr != nil {
			client.Enqueue(errFrame("room_unavailable", ""))
			return
		}
		client.Enqueue(models.ServerFrame{Type: models.FrameResync, Data: snap})
	case errors.Is(err, session.ErrInvalidOp):
		client.Enqueue(errFrame("invalid_op", err.Error()))
	default:
		client.Enqueue(errFrame("room_unavailable", ""))
	}
}

func errFrame(code, msg string) models.ServerFrame {
	return models.ServerFrame{
		Type: models.FrameError,
		Data: models.ErrorResponse{Code: code, Message: msg},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
