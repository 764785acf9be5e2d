package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/zhouzirui/emi-live/backend/internal/metrics"
	"github.com/zhouzirui/emi-live/backend/internal/model/live"
)

const (
	DefaultFrameInterval = time.Second
	jpegQuality          = 92
)

// FrameSource 摄像头画面来源。
type FrameSource interface {
	// Ready 表示当前是否有可用画面。
	Ready() bool
	Frame() (image.Image, error)
}

// VideoCapture 按固定间隔采样画面；上一帧未处理完时丢弃本次采样。
type VideoCapture struct {
	source  FrameSource
	sink    ChunkSink
	logger  *zap.Logger
	metrics *metrics.Collector

	busy   atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// StartVideo 启动采样循环，interval<=0 时为 1 秒。
func StartVideo(source FrameSource, sink ChunkSink, interval time.Duration, logger *zap.Logger, m *metrics.Collector) *VideoCapture {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &VideoCapture{
		source:  source,
		sink:    sink,
		logger:  logger.With(zap.String("component", "capture.video")),
		metrics: m,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.loop(ctx, interval)
	return c
}

func (c *VideoCapture) loop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick 在独立 goroutine 中处理一帧，处理中的帧未完成时直接丢弃本次采样。
func (c *VideoCapture) tick(ctx context.Context) {
	if !c.busy.CompareAndSwap(false, true) {
		c.metrics.FrameDropped("video_busy")
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.busy.Store(false)
		c.captureOnce(ctx)
	}()
}

func (c *VideoCapture) captureOnce(ctx context.Context) {
	if !c.source.Ready() {
		return
	}
	frame, err := c.source.Frame()
	if err != nil {
		c.logger.Debug("frame unavailable", zap.Error(err))
		return
	}
	data, err := EncodeFrame(frame)
	if err != nil {
		c.logger.Warn("encode frame failed", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.sink(live.NewImageChunk(data))
}

// Stop 停止采样并等待进行中的帧结束，可重复调用。
func (c *VideoCapture) Stop() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

// EncodeFrame 缩放到一半分辨率并编码为 JPEG。
func EncodeFrame(src image.Image) ([]byte, error) {
	b := src.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
