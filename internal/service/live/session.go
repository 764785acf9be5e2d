package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/model/chat"
	livemodel "github.com/zhouzirui/emi-live/backend/internal/model/live"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
	"github.com/zhouzirui/emi-live/backend/internal/service/capture"
	"github.com/zhouzirui/emi-live/backend/internal/service/playback"
)

// session 一次连接的全部资源。异步回调持有 session 指针，
// 与 Client.current 不一致或已拆除时丢弃事件。
type session struct {
	id     string
	client *Client
	logger *zap.Logger

	// 以下字段由 client.mu 保护。
	state           State
	torndown        bool
	transport       Transport
	audio           *capture.AudioCapture
	video           *capture.VideoCapture
	sentFingerprint profile.Fingerprint
	historyID       string

	// active 供采集回调无锁判断是否还能发送。
	active    atomic.Bool
	scheduler *playback.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc

	transcriptMu sync.Mutex
	transcript   strings.Builder
}

func newSession(c *Client, out playback.Output) *session {
	id := newSessionID()
	ctx, cancel := context.WithCancel(context.Background())
	logger := c.logger.With(zap.String("session", id))
	return &session{
		id:     id,
		client: c,
		logger: logger,
		state:  StateIdle,
		scheduler: playback.NewScheduler(out,
			playback.WithLogger(logger),
			playback.WithMetrics(c.opts.Metrics)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// send 经传输层发送一帧。transport 在 Connect 中赋值后不再改变。
func (s *session) send(frame any, kind string) error {
	t := s.transport
	if t == nil {
		return ErrNotActive
	}
	if err := t.Send(frame); err != nil {
		return err
	}
	s.client.opts.Metrics.FrameSent(kind)
	return nil
}

// sendMedia 采集回调，仅在 Active 时发送；失败只记录错误。
func (s *session) sendMedia(chunk livemodel.MediaChunk) {
	if !s.active.Load() {
		return
	}
	kind := "audio"
	if chunk.MIMEType == livemodel.MIMEImageJPEG {
		kind = "video"
	}
	if err := s.send(livemodel.NewMediaFrame(chunk), kind); err != nil {
		s.client.opts.Metrics.FrameDropped("send_failed")
		s.client.recordError(s, err)
	}
}

// SendToolResponse 实现 tools.Responder；会话已结束时静默丢弃。
func (s *session) SendToolResponse(frame livemodel.ToolResponseFrame) error {
	if !s.active.Load() {
		s.logger.Debug("tool response dropped, session inactive")
		return nil
	}
	return s.send(frame, "tool_response")
}

// SendTurnComplete 实现 tools.Responder。
func (s *session) SendTurnComplete() error {
	if !s.active.Load() {
		return nil
	}
	return s.send(livemodel.NewTurnComplete(), "turn_complete")
}

// readLoop 按到达顺序处理下行帧，连接关闭时进入拆除。
func (s *session) readLoop() {
	c := s.client
	for {
		data, err := s.transport.Receive()
		if err != nil {
			c.handleClosed(s, err)
			return
		}

		events, err := livemodel.Decode(data)
		if err != nil {
			c.opts.Metrics.FrameDropped("malformed")
			s.logger.Warn("[live] dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}

		if !c.acknowledge(s) {
			return
		}
		for _, ev := range events {
			if !s.active.Load() {
				return
			}
			c.opts.Metrics.FrameReceived(ev.Kind.String())
			s.dispatch(ev)
		}
	}
}

func (s *session) dispatch(ev livemodel.Event) {
	c := s.client
	switch ev.Kind {
	case livemodel.EventAudio:
		if err := s.scheduler.EnqueueBase64(ev.Audio); err != nil {
			s.logger.Warn("[live] dropping audio chunk", zap.Error(err))
			return
		}
		c.emit(nil, true)
	case livemodel.EventText:
		s.appendTranscript(ev.Text)
		if c.opts.Config.TranscriptEnabled {
			text := ev.Text
			c.emit(&text, false)
		}
	case livemodel.EventFunctionCall:
		s.logger.Info("[live] tool call", zap.String("tool", ev.Call.Name), zap.String("id", ev.Call.ID))
		c.opts.Tools.Invoke(s.ctx, ev.Call, s)
	case livemodel.EventInterrupted:
		s.scheduler.Clear()
	case livemodel.EventTurnComplete:
		s.flushTranscript()
	case livemodel.EventSetupComplete:
		s.logger.Debug("[live] setup complete")
	default:
		s.logger.Debug("[live] ignoring unrecognized frame")
	}
}

func (c *Client) emit(text *string, audioPresent bool) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(text, audioPresent)
	}
}

// acknowledge 第一个成功解码的下行帧视为握手确认：进入 Active 并启动采集。
// 会话已被替换或拆除时返回 false。
func (c *Client) acknowledge(s *session) bool {
	c.mu.Lock()
	if c.current != s || s.torndown {
		c.mu.Unlock()
		return false
	}
	if s.state != StateAwaitingHandshakeAck {
		c.mu.Unlock()
		return true
	}
	c.transitionLocked(s, StateActive)
	s.active.Store(true)
	c.mu.Unlock()

	s.logger.Info("[live] session active")
	c.startCapture(s)
	c.syncContext(s)
	return true
}

// startCapture 设备获取失败时会话保持连接，只记录错误。
func (c *Client) startCapture(s *session) {
	var audioCap *capture.AudioCapture
	if c.opts.Microphone != nil {
		var err error
		audioCap, err = capture.StartAudio(s.ctx, c.opts.Microphone, s.sendMedia, c.setVolume, s.logger)
		if err != nil {
			c.recordError(s, err)
		}
	}

	var videoCap *capture.VideoCapture
	if c.opts.Camera != nil && c.opts.Config.VideoEnabled {
		videoCap = capture.StartVideo(c.opts.Camera, s.sendMedia, capture.DefaultFrameInterval, s.logger, c.opts.Metrics)
	}

	c.mu.Lock()
	if c.current != s || s.torndown {
		c.mu.Unlock()
		if audioCap != nil {
			audioCap.Stop()
		}
		if videoCap != nil {
			videoCap.Stop()
		}
		return
	}
	s.audio, s.video = audioCap, videoCap
	c.mu.Unlock()
}

// handleClosed 远端关闭或读错误：非正常关闭时记录错误，然后拆除。
func (c *Client) handleClosed(s *session, err error) {
	c.mu.Lock()
	userClosed := s.torndown
	c.mu.Unlock()
	if userClosed {
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.logger.Info("[live] remote closed the session")
	} else if !errors.Is(err, context.Canceled) {
		c.recordError(s, err)
	}
	c.teardown(s)
}

func (s *session) appendTranscript(text string) {
	s.transcriptMu.Lock()
	s.transcript.WriteString(text)
	s.transcriptMu.Unlock()
}

// flushTranscript 把本轮模型文本写入历史。
func (s *session) flushTranscript() {
	s.transcriptMu.Lock()
	text := strings.TrimSpace(s.transcript.String())
	s.transcript.Reset()
	s.transcriptMu.Unlock()

	if text != "" {
		s.saveMessage(context.Background(), chat.SenderModel, text)
	}
}

func (s *session) saveMessage(ctx context.Context, sender, content string) {
	history := s.client.opts.History
	s.client.mu.Lock()
	historyID := s.historyID
	s.client.mu.Unlock()
	if history == nil || historyID == "" {
		return
	}
	if err := history.SaveMessage(ctx, chat.Message{SessionID: historyID, Sender: sender, Content: content}); err != nil {
		s.logger.Debug("[live] save history failed", zap.Error(err))
	}
}
