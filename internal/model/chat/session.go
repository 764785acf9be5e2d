package chat

import "time"

const (
	ModeLive = "live"
	ModeText = "text"
)

// Session 一次对话，实时会话每次连接对应一个。
type Session struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}
