package model

import "time"

const (
	DefaultUserColor = "#4ECDC4"
	DefaultUserName  = "Guest"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Room struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"roomCode"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomMember is the durable presence record. TotalFocusTime holds whole
// seconds accumulated before the interval that started at FocusStartTime.
type RoomMember struct {
	UserID         string     `json:"userId"`
	RoomID         string     `json:"roomId"`
	IsFocusing     bool       `json:"isFocusing"`
	FocusStartTime *time.Time `json:"focusStartTime,omitempty"`
	TotalFocusTime int64      `json:"totalFocusTime"`
	LastActiveAt   time.Time  `json:"lastActiveAt"`
	JoinedAt       time.Time  `json:"joinedAt"`

	// Populated by reads that join the users table.
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// FocusingFor returns the accumulated total plus the running interval, in
// whole seconds, as of asOf.
func (m RoomMember) FocusingFor(asOf time.Time) int64 {
	total := m.TotalFocusTime
	if m.IsFocusing && m.FocusStartTime != nil {
		if elapsed := asOf.Sub(*m.FocusStartTime).Milliseconds() / 1000; elapsed > 0 {
			total += elapsed
		}
	}
	return total
}

type FocusSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	RoomID    *string    `json:"roomId,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  int64      `json:"duration"`
	Completed bool       `json:"completed"`

	User *User `json:"user,omitempty"`
}

func (s FocusSession) Open() bool {
	return s.EndTime == nil
}

type UserStats struct {
	TotalFocusTime     int64   `json:"totalFocusTime"`
	TotalSessions      int64   `json:"totalSessions"`
	AverageSessionTime float64 `json:"averageSessionTime"`
}
