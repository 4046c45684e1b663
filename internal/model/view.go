package model

import "time"

// MemberView is the wire shape of a live room member shared by the pull
// endpoint and the push channel. Timestamps are unix milliseconds.
type MemberView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Color            string `json:"color"`
	IsFocusing       bool   `json:"isFocusing"`
	FocusStartTime   *int64 `json:"focusStartTime"`
	TotalFocusTime   int64  `json:"totalFocusTime"`
	CurrentFocusTime int64  `json:"currentFocusTime"`
	LastActiveAt     int64  `json:"lastActiveAt"`
}

func NewMemberView(m RoomMember, asOf time.Time) MemberView {
	view := MemberView{
		ID:               m.UserID,
		Name:             m.Name,
		Color:            m.Color,
		IsFocusing:       m.IsFocusing,
		TotalFocusTime:   m.TotalFocusTime,
		CurrentFocusTime: m.FocusingFor(asOf),
		LastActiveAt:     m.LastActiveAt.UnixMilli(),
	}
	if m.IsFocusing && m.FocusStartTime != nil {
		startMs := m.FocusStartTime.UnixMilli()
		view.FocusStartTime = &startMs
	}
	return view
}

type PresenceSnapshot struct {
	Members  []MemberView `json:"members"`
	RoomCode string       `json:"roomCode"`
	AsOf     int64        `json:"asOf"`
}

// WithStatus applies a focus transition locally, the same way the durable
// store does: leaving focus folds the running interval into the total.
func (v MemberView) WithStatus(isFocusing bool, at time.Time) MemberView {
	nowMs := at.UnixMilli()
	switch {
	case isFocusing && !v.IsFocusing:
		start := nowMs
		v.FocusStartTime = &start
	case !isFocusing && v.IsFocusing:
		if v.FocusStartTime != nil {
			if elapsed := (nowMs - *v.FocusStartTime) / 1000; elapsed > 0 {
				v.TotalFocusTime += elapsed
			}
		}
		v.FocusStartTime = nil
	}
	v.IsFocusing = isFocusing
	if nowMs > v.LastActiveAt {
		v.LastActiveAt = nowMs
	}
	v.CurrentFocusTime = v.TotalFocusTime
	if v.IsFocusing && v.FocusStartTime != nil {
		if elapsed := (nowMs - *v.FocusStartTime) / 1000; elapsed > 0 {
			v.CurrentFocusTime += elapsed
		}
	}
	return v
}
