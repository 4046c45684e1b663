package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"focusroom/internal/model"
	"focusroom/internal/service"
)

// Client is one push connection. room, userID and profile are owned by
// readPump.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	room    *Room
	userID  string
	profile JoinRoomPayload
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) logCtx() logrus.FieldLogger {
	fields := logrus.Fields{"user_id": c.userID}
	if c.room != nil {
		fields["room_code"] = c.room.code
	}
	return c.hub.logger.WithFields(fields)
}

func (c *Client) readPump(join *JoinRoomPayload) {
	defer func() {
		if c.room != nil {
			c.room.do(func() { c.room.removeConn(c) })
			c.room = nil
		}
		c.close()
		c.hub.metrics.ConnectionClosed()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if join != nil {
		c.joinRoom(*join)
	}

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logCtx().WithError(err).Warn("push connection closed unexpectedly")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}
		c.handle(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// deliver queues message without blocking. It reports false when the
// buffer is full.
func (c *Client) deliver(message []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// close stops the write pump, which sends a close frame and closes the
// socket; that in turn ends readPump.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) handle(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.sendError("malformed message")
		return
	}

	switch env.Type {
	case EventJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.sendError("malformed join-room payload")
			return
		}
		c.joinRoom(payload)
	case EventUpdateStatus:
		var payload UpdateStatusPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.sendError("malformed update-status payload")
			return
		}
		c.updateStatus(payload.IsFocusing)
	case EventHeartbeat:
		c.heartbeat()
	default:
		c.sendError("unknown event " + env.Type)
	}
}

func (c *Client) joinRoom(payload JoinRoomPayload) {
	payload.RoomCode = strings.TrimSpace(payload.RoomCode)
	payload.UserID = strings.TrimSpace(payload.UserID)
	if payload.RoomCode == "" || payload.UserID == "" {
		c.sendError("roomCode and userId are required")
		return
	}

	if c.room != nil {
		previous := c.room
		previous.do(func() { previous.removeConn(c) })
		c.room = nil
	}

	c.profile = payload
	c.userID = payload.UserID
	c.room = c.hub.attach(c, payload.RoomCode, payload.UserID)
	room := c.room

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, apiErr := c.hub.presence.Join(ctx, service.JoinInput{
		RoomCode:       payload.RoomCode,
		UserID:         payload.UserID,
		DisplayName:    payload.DisplayName,
		Color:          payload.Color,
		IsFocusing:     payload.IsFocusing,
		FocusStartTime: payload.FocusStartTime,
		TotalFocusTime: payload.TotalFocusTime,
	}); apiErr != nil {
		c.hub.metrics.StoreFailure("join")
		c.logCtx().WithFields(logrus.Fields{"code": apiErr.Code, "transient": apiErr.Transient()}).Warn("durable join failed, broadcasting local view")
		view := c.fallbackView(c.hub.clock())
		room.do(func() { room.upsertMember(EventUserJoined, view) })
	}

	c.sendSnapshot(ctx)
}

func (c *Client) updateStatus(isFocusing bool) {
	if c.room == nil {
		c.sendError("join a room first")
		return
	}
	room := c.room

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, apiErr := c.hub.presence.RecordStatus(ctx, room.code, c.userID, isFocusing); apiErr != nil {
		c.hub.metrics.StoreFailure("record_status")
		c.logCtx().WithFields(logrus.Fields{"code": apiErr.Code, "transient": apiErr.Transient()}).Warn("durable status write failed, broadcasting local view")
		at := c.hub.clock()
		room.do(func() { room.applyStatus(c, isFocusing, at) })
	}
}

func (c *Client) heartbeat() {
	if c.room == nil {
		return
	}
	c.hub.touch(c.room.code, []string{c.userID})
}

// sendSnapshot sends the live roster to this client, from the durable
// store when it answers and from the in-memory roster otherwise.
func (c *Client) sendSnapshot(ctx context.Context) {
	room := c.room
	now := c.hub.clock()
	payload := RoomUsersPayload{RoomCode: room.code, AsOf: now.UnixMilli()}

	snapshot, apiErr := c.hub.presence.ListLive(ctx, room.code, now)
	if apiErr == nil {
		payload.Members = snapshot.Members
	} else {
		c.logCtx().WithFields(logrus.Fields{"code": apiErr.Code, "transient": apiErr.Transient()}).Warn("live list failed, sending in-memory roster")
		room.do(func() { payload.Members = room.roster() })
	}
	if payload.Members == nil {
		payload.Members = []model.MemberView{}
	}
	c.sendEvent(EventRoomUsers, payload)
}

func (c *Client) sendEvent(event string, payload interface{}) {
	message, err := Encode(event, payload)
	if err != nil {
		c.logCtx().WithError(err).Error("encode event failed")
		return
	}
	if !c.deliver(message) {
		c.close()
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(EventError, ErrorPayload{Message: message})
}

// fallbackView is the member as announced by the client itself.
func (c *Client) fallbackView(at time.Time) model.MemberView {
	p := c.profile
	view := model.MemberView{
		ID:             p.UserID,
		Name:           strings.TrimSpace(p.DisplayName),
		Color:          strings.TrimSpace(p.Color),
		IsFocusing:     p.IsFocusing,
		TotalFocusTime: p.TotalFocusTime,
		LastActiveAt:   at.UnixMilli(),
	}
	if view.Name == "" {
		view.Name = model.DefaultUserName
	}
	if view.Color == "" {
		view.Color = model.DefaultUserColor
	}
	view.CurrentFocusTime = view.TotalFocusTime
	if p.IsFocusing {
		start := at.UnixMilli()
		if p.FocusStartTime != nil && *p.FocusStartTime <= start {
			start = *p.FocusStartTime
		}
		view.FocusStartTime = &start
		if elapsed := (at.UnixMilli() - start) / 1000; elapsed > 0 {
			view.CurrentFocusTime += elapsed
		}
	}
	return view
}
