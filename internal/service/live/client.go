// Package live 实现与 Gemini Live 的实时双工语音会话。
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/audio"
	"github.com/zhouzirui/emi-live/backend/internal/config"
	"github.com/zhouzirui/emi-live/backend/internal/metrics"
	"github.com/zhouzirui/emi-live/backend/internal/model/chat"
	livemodel "github.com/zhouzirui/emi-live/backend/internal/model/live"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
	"github.com/zhouzirui/emi-live/backend/internal/service/capture"
	"github.com/zhouzirui/emi-live/backend/internal/service/playback"
	"github.com/zhouzirui/emi-live/backend/internal/service/prompt"
	"github.com/zhouzirui/emi-live/backend/internal/service/tools"
)

var (
	ErrNotActive     = errors.New("live session is not active")
	ErrNotConfigured = errors.New("live session is not configured")
	ErrEmptyMessage  = errors.New("message text is empty")
)

// Callback 调用方回调：text 非 nil 表示模型文本，audioPresent 表示本次事件包含音频。
type Callback func(text *string, audioPresent bool)

// StateCallback 状态或错误变化通知。在独立 goroutine 中调用，不持有客户端锁；
// 连续变化可能被合并，只保证最终送达最新状态。
type StateCallback func(state State, errText string)

// History 对话历史存储。
type History interface {
	CreateSession(ctx context.Context, mode string) (chat.Session, error)
	SaveMessage(ctx context.Context, message chat.Message) error
	Recent(ctx context.Context, limit int) []chat.Message
}

// Options 客户端依赖。
type Options struct {
	Config     config.LiveConfig
	Dialer     Dialer
	Profiles   profile.Store
	History    History
	Prompt     *prompt.Builder
	Tools      *tools.Bridge
	Microphone capture.AudioSource
	// Camera 为 nil 或 Config.VideoEnabled 为 false 时不采集画面。
	Camera capture.FrameSource
	// NewOutput 每次连接分配一个音频输出。
	NewOutput func() (playback.Output, error)
	OnEvent   Callback
	OnState   StateCallback
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

// Client 对外的会话控制入口；同一时刻最多一个会话。
type Client struct {
	opts   Options
	logger *zap.Logger

	// mu 串行化所有控制流：连接、断开、发送文本、上下文同步与状态迁移。
	mu      sync.Mutex
	current *session
	closing int
	lastErr string

	volume      atomic.Uint64
	unsubscribe func()

	stateChanged chan struct{}
	stop         chan struct{}
	notifierDone chan struct{}
	closeOnce    sync.Once
}

// NewClient 创建客户端并订阅资料变更。
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Prompt == nil {
		opts.Prompt = prompt.NewBuilder(opts.Config.HistoryLimit)
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewBridge(tools.NewRegistry(), opts.Logger, opts.Metrics, 0)
	}
	if opts.NewOutput == nil {
		opts.NewOutput = func() (playback.Output, error) {
			return playback.NewClockOutput(audio.OutputSampleRate), nil
		}
	}

	c := &Client{
		opts:         opts,
		logger:       opts.Logger.With(zap.String("component", "live")),
		stateChanged: make(chan struct{}, 1),
		stop:         make(chan struct{}),
		notifierDone: make(chan struct{}),
	}
	if opts.Profiles != nil {
		c.unsubscribe = opts.Profiles.Subscribe(c.onProfileChange)
	}
	if opts.OnState != nil {
		go c.notifyStates()
	} else {
		close(c.notifierDone)
	}
	return c
}

// Connect 建立会话。已有会话时为空操作。
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil
	}
	if !c.opts.Config.Enabled() || c.opts.Dialer == nil {
		c.lastErr = ErrNotConfigured.Error()
		c.signalStateLocked()
		c.mu.Unlock()
		return ErrNotConfigured
	}

	out, err := c.opts.NewOutput()
	if err != nil {
		c.lastErr = fmt.Sprintf("audio output unavailable: %v", err)
		c.signalStateLocked()
		c.mu.Unlock()
		return fmt.Errorf("allocate audio output: %w", err)
	}

	s := newSession(c, out)
	c.current = s
	c.lastErr = ""
	c.transitionLocked(s, StateConnecting)
	c.mu.Unlock()

	c.logger.Info("[live] connecting", zap.String("session", s.id))

	transport, err := c.opts.Dialer.Dial(ctx)
	if err != nil {
		c.recordError(s, fmt.Errorf("connection error: %w", err))
		c.teardown(s)
		return err
	}

	c.mu.Lock()
	if c.current != s || s.torndown {
		c.mu.Unlock()
		_ = transport.Close()
		return nil
	}
	s.transport = transport
	if err := c.sendSetupLocked(ctx, s); err != nil {
		c.mu.Unlock()
		c.recordError(s, fmt.Errorf("send setup: %w", err))
		c.teardown(s)
		return err
	}
	c.transitionLocked(s, StateAwaitingHandshakeAck)
	c.mu.Unlock()

	go s.readLoop()
	return nil
}

// sendSetupLocked 发送唯一的握手帧，并记录已发送上下文的指纹。
func (c *Client) sendSetupLocked(ctx context.Context, s *session) error {
	snapshot := profile.Default()
	if c.opts.Profiles != nil {
		snapshot = c.opts.Profiles.Snapshot()
	}

	var recent []chat.Message
	if c.opts.History != nil {
		recent = c.opts.History.Recent(ctx, c.opts.Config.HistoryLimit)
		if conv, err := c.opts.History.CreateSession(ctx, chat.ModeLive); err == nil {
			s.historyID = conv.ID
		}
	}

	instruction, err := c.opts.Prompt.SystemInstruction(ctx, snapshot, recent)
	if err != nil {
		return err
	}

	frame := livemodel.NewSetupFrame(c.opts.Config.Model, c.opts.Config.Voice, instruction, c.opts.Tools.Catalog())
	if err := s.send(frame, "setup"); err != nil {
		return err
	}
	s.sentFingerprint = snapshot.Fingerprint()
	return nil
}

// SendMessage 在 Active 状态下发送一条用户文本轮次。
func (c *Client) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	s := c.current
	if s == nil || s.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	err := s.send(livemodel.NewUserTurn(text), "text")
	c.mu.Unlock()

	if err != nil {
		c.recordError(s, err)
		return err
	}
	s.saveMessage(ctx, chat.SenderUser, text)
	return nil
}

// Disconnect 释放全部资源，可重复调用，也可在回调中调用。
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return
	}
	c.logger.Info("[live] disconnect requested", zap.String("session", s.id))
	c.teardown(s)
}

// Close 断开会话、取消资料订阅并停止状态通知，可重复调用。
func (c *Client) Close() {
	c.Disconnect()
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		close(c.stop)
	})
	<-c.notifierDone
}

// State 返回当前状态。
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.state
	}
	if c.closing > 0 {
		return StateClosing
	}
	return StateIdle
}

// Connected 传输已打开（握手中或已激活）。
func (c *Client) Connected() bool {
	state := c.State()
	return state == StateAwaitingHandshakeAck || state == StateActive
}

// Streaming 会话已激活，媒体正在上行。
func (c *Client) Streaming() bool {
	return c.State() == StateActive
}

// Err 最近一次错误描述，没有错误时为空。
func (c *Client) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// VolumeLevel 最近一块麦克风采样的电平，0-100。
func (c *Client) VolumeLevel() float64 {
	return math.Float64frombits(c.volume.Load())
}

func (c *Client) setVolume(level float64) {
	c.volume.Store(math.Float64bits(level))
}

// recordError 只记录当前会话的错误，不触发拆除。
func (c *Client) recordError(s *session, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	if c.current == s {
		c.lastErr = err.Error()
		c.signalStateLocked()
	}
	c.mu.Unlock()
	c.logger.Warn("[live] session error", zap.String("session", s.id), zap.Error(err))
}

func (c *Client) transitionLocked(s *session, to State) {
	from := s.state
	s.state = to
	c.opts.Metrics.StateTransition(from.String(), to.String())
	c.logger.Debug("[live] state transition",
		zap.String("session", s.id),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	c.signalStateLocked()
}

// signalStateLocked 非阻塞地唤醒通知 goroutine，已有未处理信号时合并。
func (c *Client) signalStateLocked() {
	select {
	case c.stateChanged <- struct{}{}:
	default:
	}
}

// notifyStates 在锁外读取最新状态并回调，回调中可以安全地调用客户端方法。
func (c *Client) notifyStates() {
	defer close(c.notifierDone)
	lastState, lastErr := StateIdle, ""
	deliver := func() {
		state, errText := c.State(), c.Err()
		if state == lastState && errText == lastErr {
			return
		}
		lastState, lastErr = state, errText
		c.opts.OnState(state, errText)
	}
	for {
		select {
		case <-c.stateChanged:
			deliver()
		case <-c.stop:
			deliver()
			return
		}
	}
}

// teardown 唯一的清理路径：关闭传输、停止采集、清空并释放播放。对同一会话幂等。
func (c *Client) teardown(s *session) {
	c.mu.Lock()
	if s.torndown {
		c.mu.Unlock()
		return
	}
	s.torndown = true
	s.active.Store(false)
	c.transitionLocked(s, StateClosing)
	if c.current == s {
		c.current = nil
	}
	c.closing++
	transport, audioCap, videoCap := s.transport, s.audio, s.video
	s.audio, s.video = nil, nil
	c.mu.Unlock()

	s.cancel()
	if transport != nil {
		if err := transport.Close(); err != nil {
			c.logger.Debug("[live] transport close", zap.Error(err))
		}
	}
	if audioCap != nil {
		audioCap.Stop()
	}
	if videoCap != nil {
		videoCap.Stop()
	}
	if err := s.scheduler.Close(); err != nil {
		c.logger.Debug("[live] release audio output", zap.Error(err))
	}
	s.flushTranscript()

	c.mu.Lock()
	c.closing--
	c.transitionLocked(s, StateIdle)
	if c.current == nil {
		c.setVolume(0)
	}
	c.mu.Unlock()

	c.logger.Info("[live] session closed", zap.String("session", s.id))
}

func newSessionID() string {
	return uuid.NewString()
}
