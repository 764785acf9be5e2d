package live

// State 会话生命周期状态。
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingHandshakeAck
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshakeAck:
		return "awaiting_handshake_ack"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
