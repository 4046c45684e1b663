// Package roomsync is the client side of room synchronization. A Channel
// delivers room snapshots either by polling the presence endpoint (pull) or
// by following the push connection (push); callers choose per deployment.
package roomsync

import (
	"context"
	"sort"
	"time"

	"focusroom/internal/model"
)

const (
	SourcePull = "pull"
	SourcePush = "push"
)

// Snapshot is one view of a room's live members.
type Snapshot struct {
	RoomCode string
	Members  []model.MemberView
	AsOf     time.Time
	Source   string
	// Degraded is set when the latest refresh failed; Members then holds the
	// last good roster and Err the failure.
	Degraded bool
	Err      error
}

// Channel delivers snapshots until ctx ends or the channel fails.
type Channel interface {
	Run(ctx context.Context, onSnapshot func(Snapshot)) error
}

func sortMembers(members []model.MemberView) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].LastActiveAt != members[j].LastActiveAt {
			return members[i].LastActiveAt > members[j].LastActiveAt
		}
		return members[i].ID < members[j].ID
	})
}

var (
	_ Channel = (*Poller)(nil)
	_ Channel = (*Subscriber)(nil)
)
