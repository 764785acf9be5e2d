package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL+"/", server.Client(), nil)
	client.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return client
}

func TestListEventsProjection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("maxResults"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "2025-01-02T03:04:05Z", q.Get("timeMin"))

		_, _ = w.Write([]byte(`{"items":[
			{"summary":"Standup","start":{"dateTime":"2025-01-02T09:00:00Z"},"end":{"dateTime":"2025-01-02T09:15:00Z"},
			 "location":"Room 1","attendees":[{"email":"a@x.io"},{"email":"b@x.io"}],"htmlLink":"https://cal/1","status":"confirmed"},
			{"start":{"date":"2025-01-05"},"end":{"date":"2025-01-06"}}
		]}`))
	})

	events, err := client.ListEvents(context.Background(), "tok", 5)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Standup", events[0].Summary)
	assert.Equal(t, "2025-01-02T09:00:00Z", events[0].Start)
	require.NotNil(t, events[0].Location)
	assert.Equal(t, "Room 1", *events[0].Location)
	assert.Nil(t, events[0].Description)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, events[0].Attendees)
	assert.Equal(t, "https://cal/1", events[0].Link)

	assert.Equal(t, "Untitled Event", events[1].Summary)
	assert.Equal(t, "2025-01-05", events[1].Start)
	assert.NotNil(t, events[1].Attendees)
}

func TestListEventsStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthenticated},
		{http.StatusForbidden, ErrPermissionDenied},
		{http.StatusNotFound, ErrNotFound},
	}

	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"x"}`, tc.status)
		})
		_, err := client.ListEvents(context.Background(), "tok", 10)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestListEventsGenericError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.ListEvents(context.Background(), "tok", 10)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "502")
}

func TestListEventsStructuredErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Request had insufficient authentication scopes."}}`))
	})
	_, err := client.ListEvents(context.Background(), "tok", 10)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestListEventsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.ListEvents(context.Background(), "tok", 10)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "calendar request")
}

func TestListEventsRequiresToken(t *testing.T) {
	client := NewClient("http://unused", nil, nil)
	_, err := client.ListEvents(context.Background(), " ", 10)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
