package live

import (
	"context"

	"go.uber.org/zap"

	livemodel "github.com/zhouzirui/emi-live/backend/internal/model/live"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
)

// onProfileChange 资料变更推送。推送的值可能已过期，比较时总是重新读取快照。
func (c *Client) onProfileChange(profile.Profile) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return
	}
	c.syncContext(s)
}

// syncContext 指纹与上次发送不同且会话 Active 时，发送一条上下文更新轮次。
// 激活时也会调用一次，覆盖握手期间发生的变更。
func (c *Client) syncContext(s *session) {
	if c.opts.Profiles == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != s || s.state != StateActive {
		return
	}
	p := c.opts.Profiles.Snapshot()
	fp := p.Fingerprint()
	if fp == s.sentFingerprint {
		return
	}

	text, err := c.opts.Prompt.ContextUpdate(context.Background(), p)
	if err != nil {
		s.logger.Warn("[live] build context update failed", zap.Error(err))
		return
	}
	if err := s.send(livemodel.NewUserTurn(text), "context_update"); err != nil {
		c.lastErr = err.Error()
		c.signalStateLocked()
		s.logger.Warn("[live] send context update failed", zap.Error(err))
		return
	}
	s.sentFingerprint = fp
	s.logger.Info("[live] context update sent",
		zap.String("language", p.Language),
		zap.String("location", p.Location),
		zap.Strings("tags", p.Tags))
}
