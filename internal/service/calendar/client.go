package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	ErrUnauthenticated  = errors.New("calendar: authentication failed")
	ErrPermissionDenied = errors.New("calendar: access denied")
	ErrNotFound         = errors.New("calendar: not found")
)

// APIError 其它非 2xx 响应。
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Google Calendar API error: %s", e.Status)
}

// Event 返回给模型的事件投影。
type Event struct {
	Summary     string   `json:"summary"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description *string  `json:"description"`
	Location    *string  `json:"location"`
	Attendees   []string `json:"attendees"`
	Link        string   `json:"link,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// Client 基于生成的 Calendar v3 客户端的只读封装，令牌按次传入。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient baseURL 形如 https://www.googleapis.com/calendar/v3。
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With(zap.String("component", "calendar")),
		now:        time.Now,
	}
}

// ListEvents 列出主日历中从当前时刻开始的事件，按开始时间排序。
func (c *Client) ListEvents(ctx context.Context, token string, maxResults int) ([]Event, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}

	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("build calendar service: %w", err)
	}

	resp, err := svc.Events.List("primary").
		MaxResults(int64(maxResults)).
		OrderBy("startTime").
		SingleEvents(true).
		TimeMin(c.now().UTC().Format(time.RFC3339)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.mapError(err)
	}
	c.logger.Debug("calendar events listed", zap.Int("count", len(resp.Items)))

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, project(item))
	}
	return events, nil
}

func (c *Client) service(ctx context.Context, token string) (*gcal.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), src)
	hc.Timeout = c.httpClient.Timeout
	return gcal.NewService(ctx, option.WithHTTPClient(hc), option.WithEndpoint(c.baseURL+"/"))
}

func (c *Client) mapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("calendar request: %w", err)
	}
	c.logger.Warn("calendar api error",
		zap.Int("status", gerr.Code),
		zap.String("body", gerr.Body))
	switch gerr.Code {
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &APIError{
			StatusCode: gerr.Code,
			Status:     fmt.Sprintf("%d %s", gerr.Code, http.StatusText(gerr.Code)),
			Body:       gerr.Body,
		}
	}
}

func project(item *gcal.Event) Event {
	ev := Event{
		Summary:   item.Summary,
		Start:     eventTime(item.Start),
		End:       eventTime(item.End),
		Attendees: make([]string, 0, len(item.Attendees)),
		Link:      item.HtmlLink,
		Status:    item.Status,
	}
	if ev.Summary == "" {
		ev.Summary = "Untitled Event"
	}
	if item.Description != "" {
		desc := item.Description
		ev.Description = &desc
	}
	if item.Location != "" {
		loc := item.Location
		ev.Location = &loc
	}
	for _, a := range item.Attendees {
		if a != nil {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	return ev
}

// eventTime 全天事件只有 date。
func eventTime(t *gcal.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}
