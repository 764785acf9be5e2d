package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emi-live/backend/internal/model/chat"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
)

func TestSystemInstructionIncludesPersonaAndContext(t *testing.T) {
	p := profile.Default()
	p.Location = "Madrid"
	p.Tags = []string{"chess"}
	p.Agent.Tone = profile.ToneConcise
	p.Agent.CustomInstructions = "Call me Sam."

	text, err := NewBuilder(10).SystemInstruction(context.Background(), p, nil)
	require.NoError(t, err)

	assert.Contains(t, text, "You are Emi")
	assert.Contains(t, text, toneHints[profile.ToneConcise])
	assert.Contains(t, text, "(es)")
	assert.Contains(t, text, "Madrid")
	assert.Contains(t, text, "chess")
	assert.Contains(t, text, "Call me Sam.")
	assert.NotContains(t, text, "Recent conversation")
	assert.NotContains(t, text, "\n\n")
}

func TestSystemInstructionKeepsRecentWindow(t *testing.T) {
	recent := []chat.Message{
		{Sender: chat.SenderUser, Content: "first"},
		{Sender: chat.SenderModel, Content: "second"},
		{Sender: chat.SenderUser, Content: "third"},
	}

	text, err := NewBuilder(2).SystemInstruction(context.Background(), profile.Default(), recent)
	require.NoError(t, err)

	assert.NotContains(t, text, "first")
	assert.Contains(t, text, "Emi: second")
	assert.Contains(t, text, "User: third")
}

func TestSystemInstructionValuesWithBraces(t *testing.T) {
	p := profile.Default()
	p.Agent.CustomInstructions = "use {curly} braces"

	text, err := NewBuilder(0).SystemInstruction(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "use {curly} braces")
}

func TestContextUpdate(t *testing.T) {
	b := NewBuilder(0)

	text, err := b.ContextUpdate(context.Background(), profile.Default())
	require.NoError(t, err)
	assert.Contains(t, text, "Preferred language: es")
	assert.Contains(t, text, "Location: none")
	assert.Contains(t, text, "Interests: none")

	p := profile.Default().AddTag("chess").AddTag("jazz")
	text, err = b.ContextUpdate(context.Background(), p)
	require.NoError(t, err)
	assert.Contains(t, text, "Interests: chess, jazz")
}
