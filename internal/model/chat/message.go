package chat

import "time"

const (
	SenderUser  = "user"
	SenderModel = "model"
)

// Message 一条对话记录；实时会话中模型的转写文本按轮次合并后保存。
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
