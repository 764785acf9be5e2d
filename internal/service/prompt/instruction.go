package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/emi-live/backend/internal/model/chat"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
)

// toneHints 不同语气对应的说话风格。
var toneHints = map[profile.Tone]string{
	profile.ToneFriendly:     "warm, relaxed and approachable",
	profile.ToneProfessional: "polished, precise and courteous",
	profile.ToneConcise:      "brief and to the point, no filler",
	profile.ToneEnthusiastic: "energetic, upbeat and encouraging",
}

const personaTemplate = `You are {name}, a helpful AI personal assistant talking with the user in realtime voice.
Speak in a {tone_hint} way.
Reply in the user's preferred language ({language}) unless the user switches language.
{user_context}
You can look up the user's upcoming calendar events with the list_calendar_events tool when they ask about their schedule.
{custom_instructions}`

const contextUpdateTemplate = `[Context update] The user's preferences changed. Preferred language: {language}. Location: {location}. Interests: {tags}. Keep the conversation going and use this from now on; do not read this note aloud.`

// Builder 用 eino 模板组装系统指令和上下文更新文本。
type Builder struct {
	instruction  prompt.ChatTemplate
	update       prompt.ChatTemplate
	historyLimit int
}

// NewBuilder historyLimit 为写入系统指令的最近对话条数。
func NewBuilder(historyLimit int) *Builder {
	return &Builder{
		instruction: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage(personaTemplate),
			schema.MessagesPlaceholder("history", true),
		),
		update: prompt.FromMessages(
			schema.FString,
			schema.UserMessage(contextUpdateTemplate),
		),
		historyLimit: historyLimit,
	}
}

// SystemInstruction 根据资料和最近对话生成握手帧中的系统指令。
func (b *Builder) SystemInstruction(ctx context.Context, p profile.Profile, recent []chat.Message) (string, error) {
	hint, ok := toneHints[p.Agent.Tone]
	if !ok {
		hint = toneHints[profile.ToneFriendly]
	}

	custom := strings.TrimSpace(p.Agent.CustomInstructions)
	if custom != "" {
		custom = "Additional instructions from the user: " + custom
	}

	messages, err := b.instruction.Format(ctx, map[string]any{
		"name":                p.Agent.Name,
		"tone_hint":           hint,
		"language":            p.Language,
		"user_context":        describeUser(p),
		"custom_instructions": custom,
		"history":             b.buildHistoryMessages(recent),
	})
	if err != nil {
		return "", fmt.Errorf("format system instruction: %w", err)
	}
	return flatten(p.Agent.Name, messages), nil
}

// ContextUpdate 生成会话中途发送的上下文更新文本。
func (b *Builder) ContextUpdate(ctx context.Context, p profile.Profile) (string, error) {
	messages, err := b.update.Format(ctx, map[string]any{
		"language": p.Language,
		"location": orNone(p.Location),
		"tags":     orNone(strings.Join(p.Tags, ", ")),
	})
	if err != nil {
		return "", fmt.Errorf("format context update: %w", err)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("format context update: empty result")
	}
	return messages[0].Content, nil
}

// buildHistoryMessages 取最近 historyLimit 条，转换为 eino 消息。
func (b *Builder) buildHistoryMessages(recent []chat.Message) []*schema.Message {
	if b.historyLimit <= 0 || len(recent) == 0 {
		return nil
	}
	start := 0
	if len(recent) > b.historyLimit {
		start = len(recent) - b.historyLimit
	}

	history := make([]*schema.Message, 0, len(recent)-start)
	for _, msg := range recent[start:] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(content))
		default:
			history = append(history, schema.AssistantMessage(content, nil))
		}
	}
	return history
}

// flatten 系统指令只能是纯文本，把历史消息折叠成对话摘录。
func flatten(agentName string, messages []*schema.Message) string {
	var sb strings.Builder
	var transcript []string
	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			sb.WriteString(collapseBlankLines(msg.Content))
		case schema.User:
			transcript = append(transcript, "User: "+msg.Content)
		case schema.Assistant:
			transcript = append(transcript, agentName+": "+msg.Content)
		}
	}
	if len(transcript) > 0 {
		sb.WriteString("\n\nRecent conversation with the user:\n")
		sb.WriteString(strings.Join(transcript, "\n"))
	}
	return sb.String()
}

func describeUser(p profile.Profile) string {
	var parts []string
	if p.Location != "" {
		parts = append(parts, "The user is located in "+p.Location+".")
	}
	if len(p.Tags) > 0 {
		parts = append(parts, "The user is interested in: "+strings.Join(p.Tags, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
