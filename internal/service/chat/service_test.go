package chat_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelchat "github.com/zhouzirui/emi-live/backend/internal/model/chat"
	chat "github.com/zhouzirui/emi-live/backend/internal/service/chat"
)

func TestServiceGetSession(t *testing.T) {
	svc := chat.NewService(0)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, modelchat.ModeLive)
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, modelchat.ModeLive, got.Mode)
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService(0)
	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestServiceCreateSessionRequiresMode(t *testing.T) {
	_, err := chat.NewService(0).CreateSession(context.Background(), "")
	assert.ErrorIs(t, err, chat.ErrModeRequired)
}

func TestServiceSaveMessageValidation(t *testing.T) {
	svc := chat.NewService(0)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, modelchat.ModeText)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SaveMessage(ctx, modelchat.Message{Content: "hi"}), chat.ErrSessionNotFound)
	assert.ErrorIs(t, svc.SaveMessage(ctx, modelchat.Message{SessionID: "nope", Content: "hi"}), chat.ErrSessionNotFound)
	assert.ErrorIs(t, svc.SaveMessage(ctx, modelchat.Message{SessionID: session.ID, Content: "  "}), chat.ErrEmptyMessage)

	require.NoError(t, svc.SaveMessage(ctx, modelchat.Message{SessionID: session.ID, Sender: modelchat.SenderUser, Content: "hi"}))
	transcript, err := svc.LoadTranscript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.NotEmpty(t, transcript[0].ID)
	assert.False(t, transcript[0].CreatedAt.IsZero())
}

func TestServiceRecentWindowSpansSessions(t *testing.T) {
	svc := chat.NewService(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		session, err := svc.CreateSession(ctx, modelchat.ModeLive)
		require.NoError(t, err)
		for j := 0; j < 2; j++ {
			require.NoError(t, svc.SaveMessage(ctx, modelchat.Message{
				SessionID: session.ID,
				Sender:    modelchat.SenderUser,
				Content:   fmt.Sprintf("s%d-m%d", i, j),
			}))
		}
	}

	recent := svc.Recent(ctx, 3)
	require.Len(t, recent, 3)
	assert.Equal(t, "s1-m1", recent[0].Content)
	assert.Equal(t, "s2-m1", recent[2].Content)

	assert.Len(t, svc.Recent(ctx, 10), 4, "timeline is capped by maxKeep")
	assert.Empty(t, svc.Recent(ctx, 0))
}
