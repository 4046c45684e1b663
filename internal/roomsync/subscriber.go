package roomsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"focusroom/internal/hub"
	"focusroom/internal/model"
)

const subscriberWriteWait = 10 * time.Second

type SubscriberOptions struct {
	Dialer *websocket.Dialer
	Logger logrus.FieldLogger
}

// Subscriber is the push channel. Snapshots are one broadcast stale.
// Reconnecting after Run returns is up to the caller.
type Subscriber struct {
	endpoint string
	join     hub.JoinRoomPayload
	dialer   *websocket.Dialer
	logger   logrus.FieldLogger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewSubscriber(baseURL string, join hub.JoinRoomPayload, opts SubscriberOptions) (*Subscriber, error) {
	endpoint, err := pushEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		opts.Logger = logger
	}
	return &Subscriber{
		endpoint: endpoint,
		join:     join,
		dialer:   opts.Dialer,
		logger:   opts.Logger.WithFields(logrus.Fields{"component": "subscriber", "room_code": join.RoomCode}),
	}, nil
}

func pushEndpoint(baseURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path += "/ws"
	return parsed.String(), nil
}

// Run connects, joins the room and applies events to a local roster until
// ctx ends or the connection drops.
func (s *Subscriber) Run(ctx context.Context, onSnapshot func(Snapshot)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
	defer func() {
		s.writeMu.Lock()
		s.conn = nil
		s.writeMu.Unlock()
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if err := s.send(hub.EventJoinRoom, s.join); err != nil {
		return err
	}

	roster := make(map[string]model.MemberView)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read push channel: %w", err)
		}

		var env hub.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.WithError(err).Warn("malformed push message")
			continue
		}
		if !s.apply(roster, env) {
			continue
		}

		members := make([]model.MemberView, 0, len(roster))
		for _, member := range roster {
			members = append(members, member)
		}
		sortMembers(members)
		onSnapshot(Snapshot{
			RoomCode: s.join.RoomCode,
			Members:  members,
			AsOf:     time.Now().UTC(),
			Source:   SourcePush,
		})
	}
}

// apply folds one event into roster and reports whether it changed.
func (s *Subscriber) apply(roster map[string]model.MemberView, env hub.Envelope) bool {
	switch env.Type {
	case hub.EventRoomUsers:
		var payload hub.RoomUsersPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false
		}
		for id := range roster {
			delete(roster, id)
		}
		for _, member := range payload.Members {
			roster[member.ID] = member
		}
		return true
	case hub.EventUserJoined, hub.EventUserUpdated:
		var payload hub.MemberPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false
		}
		roster[payload.Member.ID] = payload.Member
		return true
	case hub.EventUserLeft:
		var payload hub.UserLeftPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false
		}
		delete(roster, payload.UserID)
		return true
	case hub.EventError:
		var payload hub.ErrorPayload
		_ = json.Unmarshal(env.Payload, &payload)
		s.logger.WithField("message", payload.Message).Warn("server reported an error")
	}
	return false
}

// UpdateStatus sends a status change for the joined user.
func (s *Subscriber) UpdateStatus(isFocusing bool) error {
	return s.send(hub.EventUpdateStatus, hub.UpdateStatusPayload{IsFocusing: isFocusing})
}

func (s *Subscriber) Heartbeat() error {
	return s.send(hub.EventHeartbeat, nil)
}

var ErrNotConnected = errors.New("push channel not connected")

func (s *Subscriber) send(event string, payload interface{}) error {
	message, err := hub.Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(subscriberWriteWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}
