package tools

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/zhouzirui/emi-live/backend/internal/model/live"
	"github.com/zhouzirui/emi-live/backend/internal/service/auth"
	"github.com/zhouzirui/emi-live/backend/internal/service/calendar"
)

const (
	CalendarToolName       = "list_calendar_events"
	DefaultCalendarResults = 10
	MaxCalendarResults     = 50
	noEventsMessage        = "No upcoming events found."
)

// EventLister 日历查询接口，便于测试替换。
type EventLister interface {
	ListEvents(ctx context.Context, token string, maxResults int) ([]calendar.Event, error)
}

// NewCalendarTool 创建 list_calendar_events 工具。
func NewCalendarTool(lister EventLister, tokens auth.TokenProvider) Tool {
	return Tool{
		Declaration: live.FunctionDeclaration{
			Name:        CalendarToolName,
			Description: "Lists upcoming events from the user's Google Calendar. Use this to answer questions about the user's schedule, appointments, and what they have planned.",
			Parameters: &live.Schema{
				Type: "OBJECT",
				Properties: map[string]*live.Schema{
					"maxResults": {
						Type:        "INTEGER",
						Description: "Maximum number of events to return. Default is 10.",
					},
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			token, err := tokens.AccessToken(ctx)
			if err != nil {
				if errors.Is(err, auth.ErrNoCredential) {
					return nil, fmt.Errorf("%w: calendar access has not been granted", ErrNotAuthorized)
				}
				return nil, err
			}

			events, err := lister.ListEvents(ctx, token, maxResultsArg(args))
			if err != nil {
				return nil, describeCalendarError(err)
			}
			if len(events) == 0 {
				return noEventsMessage, nil
			}
			return events, nil
		},
	}
}

// maxResultsArg JSON 数字解码为 float64；缺失或非法时使用默认值。
func maxResultsArg(args map[string]any) int {
	var n int
	switch v := args["maxResults"].(type) {
	case float64:
		if math.IsNaN(v) {
			return DefaultCalendarResults
		}
		// 先在浮点域钳制，超出 int 范围的值转换结果未定义。
		if v < 1 {
			return 1
		}
		if v > MaxCalendarResults {
			return MaxCalendarResults
		}
		n = int(v)
	case int:
		n = v
	default:
		return DefaultCalendarResults
	}
	if n < 1 {
		return 1
	}
	if n > MaxCalendarResults {
		return MaxCalendarResults
	}
	return n
}

// calendarError 面向模型的错误文本，保留原始错误以便 errors.Is 判断。
type calendarError struct {
	message string
	cause   error
}

func (e *calendarError) Error() string { return e.message }
func (e *calendarError) Unwrap() error { return e.cause }

func describeCalendarError(err error) error {
	switch {
	case errors.Is(err, calendar.ErrUnauthenticated):
		return &calendarError{message: "Authentication failed. Please sign in again.", cause: err}
	case errors.Is(err, calendar.ErrPermissionDenied):
		return &calendarError{message: "Calendar access denied. Please grant calendar permissions.", cause: err}
	case errors.Is(err, calendar.ErrNotFound):
		return &calendarError{message: "Calendar not found.", cause: err}
	default:
		return err
	}
}
