package hub

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"focusroom/internal/model"
)

// Room is the single owner of one room's push roster. All state below is
// touched only from run.
type Room struct {
	code string
	hub  *Hub
	cmds chan func()
	done chan struct{}

	conns   map[*Client]string
	members map[string]model.MemberView

	// departed holds the last LastActiveAt of members removed from the
	// roster, so late views from before the leave are not re-added.
	departed map[string]int64
}

func newRoom(h *Hub, code string) *Room {
	return &Room{
		code:     code,
		hub:      h,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		conns:    make(map[*Client]string),
		members:  make(map[string]model.MemberView),
		departed: make(map[string]int64),
	}
}

func (r *Room) run() {
	var tick <-chan time.Time
	if r.hub.heartbeat > 0 {
		ticker := time.NewTicker(r.hub.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case fn := <-r.cmds:
			fn()
			if len(r.conns) == 0 && r.hub.release(r) {
				return
			}
		case <-tick:
			if ids := r.connectedUsers(); len(ids) > 0 {
				go r.hub.touch(r.code, ids)
			}
		}
	}
}

// do runs fn on the room goroutine and waits for it. It reports false
// when the room has already stopped.
func (r *Room) do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case r.cmds <- func() {
		fn()
		close(finished)
	}:
		<-finished
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) addConn(c *Client, userID string) {
	r.conns[c] = userID
}

// removeConn drops a connection. The member leaves the roster only when
// this was their last connection in the room.
func (r *Room) removeConn(c *Client) {
	userID, ok := r.conns[c]
	if !ok {
		return
	}
	delete(r.conns, c)
	for _, other := range r.conns {
		if other == userID {
			return
		}
	}
	r.removeMember(userID)
}

// upsertMember stores and broadcasts member unless the roster already holds
// a later view. Notifications race each other on their way to the actor,
// but LastActiveAt only moves forward in the store.
func (r *Room) upsertMember(event string, member model.MemberView) {
	if r.stale(member) {
		r.hub.logger.WithFields(logrus.Fields{
			"room_code":      r.code,
			"user_id":        member.ID,
			"last_active_at": member.LastActiveAt,
		}).Debug("dropped out-of-order member view")
		return
	}
	delete(r.departed, member.ID)
	r.members[member.ID] = member
	r.broadcast(event, MemberPayload{Member: member})
}

func (r *Room) stale(member model.MemberView) bool {
	if current, ok := r.members[member.ID]; ok {
		return member.LastActiveAt < current.LastActiveAt
	}
	if leftAt, ok := r.departed[member.ID]; ok {
		return member.LastActiveAt <= leftAt
	}
	return false
}

// removeMember drops userID from the roster. user-left goes out once, for
// a member the roster actually held.
func (r *Room) removeMember(userID string) {
	member, ok := r.members[userID]
	if !ok {
		return
	}
	delete(r.members, userID)
	r.departed[userID] = member.LastActiveAt
	r.broadcast(EventUserLeft, UserLeftPayload{UserID: userID})
}

// applyStatus updates the roster without the durable store.
func (r *Room) applyStatus(c *Client, isFocusing bool, at time.Time) {
	userID := r.conns[c]
	member, ok := r.members[userID]
	if !ok {
		member = c.fallbackView(at)
	}
	r.upsertMember(EventUserUpdated, member.WithStatus(isFocusing, at))
}

// roster returns the members most recently active first.
func (r *Room) roster() []model.MemberView {
	members := make([]model.MemberView, 0, len(r.members))
	for _, member := range r.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].LastActiveAt != members[j].LastActiveAt {
			return members[i].LastActiveAt > members[j].LastActiveAt
		}
		return members[i].ID < members[j].ID
	})
	return members
}

func (r *Room) connectedUsers() []string {
	seen := make(map[string]struct{}, len(r.conns))
	ids := make([]string, 0, len(r.conns))
	for _, userID := range r.conns {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

func (r *Room) broadcast(event string, payload interface{}) {
	if len(r.conns) == 0 {
		return
	}
	message, err := Encode(event, payload)
	if err != nil {
		r.hub.logger.WithError(err).WithField("event", event).Error("encode broadcast failed")
		return
	}
	r.hub.metrics.Broadcast(event)
	for c := range r.conns {
		if !c.deliver(message) {
			r.hub.logger.WithField("room_code", r.code).Warn("client send buffer full, disconnecting")
			c.close()
		}
	}
}

func (r *Room) kickAll() {
	for c := range r.conns {
		c.close()
	}
}
