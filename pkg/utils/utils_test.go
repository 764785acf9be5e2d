package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusConflict, "busy")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"busy"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Text string `json:"text"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hola"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "hola", dst.Text)

	for _, body := range []string{"", `{"text":1}`, `{"other":"x"}`, `{"text":"a"}{}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &dst), body)
	}
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, sse.Event("status", map[string]string{"state": "idle"}))
	require.NoError(t, sse.Comment("ping"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: status\ndata: {\"state\":\"idle\"}\n\n: ping\n\n", rec.Body.String())
}
