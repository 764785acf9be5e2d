package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/audio"
	"github.com/zhouzirui/emi-live/backend/internal/model/live"
)

// ErrDeviceUnavailable 采集设备不可用或被拒绝访问。
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// AudioStream 已打开的麦克风流，Read 按设备节奏阻塞返回下一块采样。
type AudioStream interface {
	Read() ([]float32, error)
	Close() error
}

// AudioSource 麦克风设备，Open 独占设备，16kHz 单声道。
type AudioSource interface {
	Open(ctx context.Context, sampleRate int) (AudioStream, error)
}

// ChunkSink 接收采集到的媒体块。
type ChunkSink func(chunk live.MediaChunk)

// AudioCapture 一次会话内的麦克风采集。
type AudioCapture struct {
	stream  AudioStream
	encoder *audio.Encoder
	cancel  context.CancelFunc
	logger  *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// StartAudio 打开麦克风并开始推送 audio/pcm 块。设备打开失败时返回错误，不启动任何 goroutine。
func StartAudio(ctx context.Context, source AudioSource, sink ChunkSink, onLevel func(float64), logger *zap.Logger) (*AudioCapture, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "capture.audio"))

	stream, err := source.Open(ctx, audio.InputSampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &AudioCapture{
		stream:  stream,
		encoder: audio.NewEncoder(8),
		cancel:  cancel,
		logger:  logger,
	}

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.encoder.Run(runCtx)
	}()
	go c.readLoop(runCtx)
	go c.forwardLoop(sink, onLevel)

	logger.Info("microphone capture started")
	return c, nil
}

func (c *AudioCapture) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		samples, err := c.stream.Read()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("microphone read failed", zap.Error(err))
			}
			c.encoder.Close()
			return
		}
		if !c.encoder.Submit(ctx, samples) {
			return
		}
	}
}

// forwardLoop 每个编码块立即以一个媒体块发出，保持采集顺序。
func (c *AudioCapture) forwardLoop(sink ChunkSink, onLevel func(float64)) {
	defer c.wg.Done()
	for block := range c.encoder.Output() {
		if onLevel != nil {
			onLevel(block.Level)
		}
		sink(live.NewAudioChunk(block.PCM))
	}
}

// Stop 释放麦克风并等待内部 goroutine 退出，可重复调用。
func (c *AudioCapture) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.encoder.Close()
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("close microphone failed", zap.Error(err))
		}
		c.wg.Wait()
		c.logger.Info("microphone capture stopped")
	})
}
