package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/metrics"
	"github.com/zhouzirui/emi-live/backend/internal/model/live"
)

var (
	ErrUnknownTool         = errors.New("unknown tool")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrDuplicateInvocation = errors.New("duplicate tool invocation")
)

// Responder 把工具结果写回当前会话。会话已结束时实现方应静默丢弃。
type Responder interface {
	SendToolResponse(frame live.ToolResponseFrame) error
	SendTurnComplete() error
}

// Bridge 异步执行模型请求的工具，并把结果按调用 id 回传。
type Bridge struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Collector
	timeout  time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewBridge timeout<=0 时默认 30 秒。
func NewBridge(registry *Registry, logger *zap.Logger, m *metrics.Collector, timeout time.Duration) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bridge{
		registry: registry,
		logger:   logger.With(zap.String("component", "tools")),
		metrics:  m,
		timeout:  timeout,
		inflight: make(map[string]struct{}),
	}
}

// Catalog 握手时声明的工具目录。
func (b *Bridge) Catalog() []live.Tool {
	return b.registry.Catalog()
}

// Invoke 不阻塞调用方。未知工具立即回复关联错误；同一 id 已在执行时不重复执行，直接回复关联错误。
func (b *Bridge) Invoke(ctx context.Context, inv live.ToolInvocation, reply Responder) {
	tool, ok := b.registry.Lookup(inv.Name)
	if !ok {
		b.logger.Warn("unknown tool requested", zap.String("tool", inv.Name), zap.String("id", inv.ID))
		b.metrics.ToolInvoked(inv.Name, "unknown", 0)
		if err := reply.SendToolResponse(live.NewToolError(inv, fmt.Sprintf("%s: %s", ErrUnknownTool, inv.Name))); err != nil {
			b.logger.Warn("send tool error failed", zap.Error(err))
		}
		return
	}

	b.mu.Lock()
	if _, busy := b.inflight[inv.ID]; busy {
		b.mu.Unlock()
		b.logger.Warn("duplicate tool invocation rejected", zap.String("tool", inv.Name), zap.String("id", inv.ID))
		b.metrics.ToolInvoked(inv.Name, "duplicate", 0)
		if err := reply.SendToolResponse(live.NewToolError(inv, fmt.Sprintf("%s: %s", ErrDuplicateInvocation, inv.ID))); err != nil {
			b.logger.Warn("send tool error failed", zap.Error(err))
		}
		return
	}
	b.inflight[inv.ID] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(ctx, tool, inv, reply)
}

func (b *Bridge) run(ctx context.Context, tool Tool, inv live.ToolInvocation, reply Responder) {
	defer func() {
		b.mu.Lock()
		delete(b.inflight, inv.ID)
		b.mu.Unlock()
		b.wg.Done()
	}()

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	started := time.Now()
	result, err := b.call(callCtx, tool, inv.Args)
	elapsed := time.Since(started).Seconds()

	if err != nil {
		b.metrics.ToolInvoked(inv.Name, "error", elapsed)
		b.logger.Warn("tool execution failed",
			zap.String("tool", inv.Name),
			zap.String("id", inv.ID),
			zap.Error(err))
		if sendErr := reply.SendToolResponse(live.NewToolError(inv, err.Error())); sendErr != nil {
			b.logger.Warn("send tool error failed", zap.Error(sendErr))
			return
		}
		if sendErr := reply.SendTurnComplete(); sendErr != nil {
			b.logger.Warn("send turn complete failed", zap.Error(sendErr))
		}
		return
	}

	b.metrics.ToolInvoked(inv.Name, "ok", elapsed)
	b.logger.Debug("tool executed", zap.String("tool", inv.Name), zap.String("id", inv.ID), zap.Float64("seconds", elapsed))
	if sendErr := reply.SendToolResponse(live.NewToolResult(inv, result)); sendErr != nil {
		b.logger.Warn("send tool result failed", zap.Error(sendErr))
	}
}

// call 处理函数 panic 时转为错误，不影响会话。
func (b *Bridge) call(ctx context.Context, tool Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Handler(ctx, args)
}

// InFlight 返回正在执行的调用数。
func (b *Bridge) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Wait 等待所有已启动的调用结束。
func (b *Bridge) Wait() {
	b.wg.Wait()
}
