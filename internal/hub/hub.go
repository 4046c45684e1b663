package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	apperrors "focusroom/internal/errors"
	"focusroom/internal/metrics"
	"focusroom/internal/model"
	"focusroom/internal/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBuffer     = 64

	opTimeout = 5 * time.Second
)

// Presence is the durable side of the push channel.
type Presence interface {
	Join(ctx context.Context, in service.JoinInput) (*model.MemberView, *apperrors.APIError)
	RecordStatus(ctx context.Context, roomCode, userID string, isFocusing bool) (*model.MemberView, *apperrors.APIError)
	Heartbeat(ctx context.Context, roomCode, userID string) *apperrors.APIError
	ListLive(ctx context.Context, roomCode string, asOf time.Time) (*model.PresenceSnapshot, *apperrors.APIError)
}

type Options struct {
	// HeartbeatInterval is how often each room refreshes liveness for its
	// connected members. Zero disables the ticker.
	HeartbeatInterval time.Duration
	Clock             service.Clock
	Metrics           *metrics.Metrics
}

// Hub routes push connections to per-room actors. The map is the only
// state guarded by mu; each Room owns its roster.
type Hub struct {
	presence  Presence
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
	clock     service.Clock
	heartbeat time.Duration

	mu    sync.Mutex
	rooms map[string]*Room
}

func New(presence Presence, logger logrus.FieldLogger, opts Options) *Hub {
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Hub{
		presence:  presence,
		logger:    logger.WithField("component", "hub"),
		metrics:   opts.Metrics,
		clock:     clock,
		heartbeat: opts.HeartbeatInterval,
		rooms:     make(map[string]*Room),
	}
}

// Serve runs a push connection until it closes. A non-nil join is applied
// before the first client message is read.
func (h *Hub) Serve(conn *websocket.Conn, join *JoinRoomPayload) {
	client := newClient(h, conn)
	h.metrics.ConnectionOpened()
	go client.writePump()
	client.readPump(join)
}

// RoomCount reports rooms with at least one connection.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	for _, room := range rooms {
		room.do(room.kickAll)
	}
}

func (h *Hub) MemberJoined(roomCode string, member model.MemberView) {
	h.publish(roomCode, EventUserJoined, member)
}

func (h *Hub) MemberUpdated(roomCode string, member model.MemberView) {
	h.publish(roomCode, EventUserUpdated, member)
}

func (h *Hub) MemberLeft(roomCode, userID string) {
	room := h.existing(roomCode)
	if room == nil {
		return
	}
	room.do(func() {
		room.removeMember(userID)
	})
}

func (h *Hub) publish(roomCode, event string, member model.MemberView) {
	room := h.existing(roomCode)
	if room == nil {
		return
	}
	room.do(func() {
		room.upsertMember(event, member)
	})
}

func (h *Hub) existing(roomCode string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomCode]
}

// attach registers client in the room for roomCode, starting the room's
// actor on first use.
func (h *Hub) attach(client *Client, roomCode, userID string) *Room {
	for {
		h.mu.Lock()
		room, ok := h.rooms[roomCode]
		if !ok {
			room = newRoom(h, roomCode)
			h.rooms[roomCode] = room
			h.metrics.RoomOpened()
			go room.run()
		}
		h.mu.Unlock()

		if room.do(func() { room.addConn(client, userID) }) {
			return room
		}
	}
}

// release drops an empty room. It runs on the room's own goroutine.
func (h *Hub) release(room *Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(room.conns) > 0 {
		return false
	}
	if h.rooms[room.code] == room {
		delete(h.rooms, room.code)
	}
	close(room.done)
	h.metrics.RoomClosed()
	h.logger.WithField("room_code", room.code).Debug("room empty, stopped")
	return true
}

func (h *Hub) touch(roomCode string, userIDs []string) {
	for _, userID := range userIDs {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		apiErr := h.presence.Heartbeat(ctx, roomCode, userID)
		cancel()
		if apiErr == nil {
			continue
		}
		logCtx := h.logger.WithFields(logrus.Fields{"room_code": roomCode, "user_id": userID})
		if apiErr.Code == "member_not_found" {
			logCtx.Debug("heartbeat for member without durable row")
			continue
		}
		h.metrics.StoreFailure("heartbeat")
		logCtx.Warn("heartbeat failed: " + apiErr.Message)
	}
}
