package live

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ServerMessage 服务端下行消息，字段均为可选。
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCall      `json:"toolCall,omitempty"`
}

type ServerContent struct {
	ModelTurn           *ModelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

type ModelTurn struct {
	Parts []Part `json:"parts,omitempty"`
}

type Part struct {
	Text         string        `json:"text,omitempty"`
	InlineData   *InlineData   `json:"inlineData,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls,omitempty"`
}

type Transcription struct {
	Text string `json:"text,omitempty"`
}

// EventKind 下行消息解码后的变体。
type EventKind int

const (
	EventUnknown EventKind = iota
	EventSetupComplete
	EventAudio
	EventText
	EventFunctionCall
	EventTurnComplete
	EventInterrupted
)

func (k EventKind) String() string {
	switch k {
	case EventSetupComplete:
		return "setup_complete"
	case EventAudio:
		return "audio"
	case EventText:
		return "text"
	case EventFunctionCall:
		return "function_call"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Event 一个已解码的下行事件。
type Event struct {
	Kind  EventKind
	Audio string // base64 PCM16
	Text  string
	Call  ToolInvocation
}

// ErrMalformedFrame 下行帧不是合法 JSON 对象。
var ErrMalformedFrame = errors.New("malformed server frame")

// Decode 把一个下行帧展开为有序事件列表。合法但无可识别内容的帧返回单个 EventUnknown。
func Decode(data []byte) ([]Event, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var events []Event
	if msg.SetupComplete != nil {
		events = append(events, Event{Kind: EventSetupComplete})
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			events = append(events, Event{Kind: EventInterrupted})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				events = append(events, decodePart(part)...)
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, Event{Kind: EventText, Text: sc.OutputTranscription.Text})
		}
		if sc.TurnComplete {
			events = append(events, Event{Kind: EventTurnComplete})
		}
	}

	if msg.ToolCall != nil {
		for _, call := range msg.ToolCall.FunctionCalls {
			events = append(events, functionCallEvent(call))
		}
	}

	if len(events) == 0 {
		events = append(events, Event{Kind: EventUnknown})
	}
	return events, nil
}

func decodePart(part Part) []Event {
	var events []Event
	if part.InlineData != nil && part.InlineData.Data != "" {
		events = append(events, Event{Kind: EventAudio, Audio: part.InlineData.Data})
	}
	if part.Text != "" {
		events = append(events, Event{Kind: EventText, Text: part.Text})
	}
	if part.FunctionCall != nil {
		events = append(events, functionCallEvent(*part.FunctionCall))
	}
	return events
}

// functionCallEvent 缺少 id 时生成唯一关联 id，同名并发调用互不覆盖。
func functionCallEvent(call FunctionCall) Event {
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return Event{Kind: EventFunctionCall, Call: ToolInvocation{ID: id, Name: call.Name, Args: args}}
}
