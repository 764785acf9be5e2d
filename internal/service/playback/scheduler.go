package playback

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/audio"
	"github.com/zhouzirui/emi-live/backend/internal/metrics"
)

// ErrClosed 调度器已关闭。
var ErrClosed = errors.New("playback scheduler closed")

// Scheduler 把下行音频块按到达顺序无缝、不重叠地排队播放。
// 同一时刻只有一个缓冲区在输出上，前一个自然结束后才安排下一个。
type Scheduler struct {
	out        Output
	sampleRate int
	logger     *zap.Logger
	metrics    *metrics.Collector

	mu      sync.Mutex
	queue   [][]float32
	playing bool
	cursor  time.Duration
	// epoch 在 Clear 时递增，用于丢弃被放弃缓冲区的完成回调。
	epoch  uint64
	closed bool
}

// Option 调度器可选项。
type Option func(*Scheduler)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler 创建调度器，按模型下行的 24kHz 计算时长。
func NewScheduler(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:        out,
		sampleRate: audio.OutputSampleRate,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "playback"))
	return s
}

// EnqueueBase64 解码 base64 PCM16 后入队。
func (s *Scheduler) EnqueueBase64(payload string) error {
	samples, err := audio.DecodeBase64PCM16(payload)
	if err != nil {
		return err
	}
	return s.enqueue(samples)
}

// Enqueue 解码二进制 PCM16 后入队。
func (s *Scheduler) Enqueue(pcm []byte) error {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return err
	}
	return s.enqueue(samples)
}

func (s *Scheduler) enqueue(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, samples)
	s.metrics.PlaybackQueue(len(s.queue))
	if s.playing {
		s.mu.Unlock()
		return nil
	}
	s.playing = true
	next := s.popLocked()
	s.mu.Unlock()

	s.schedule(next)
	return nil
}

type scheduled struct {
	samples []float32
	at      time.Duration
	epoch   uint64
}

// popLocked 取出队首并推进 cursor，调用方需持有锁且队列非空。
func (s *Scheduler) popLocked() scheduled {
	samples := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]

	start := s.out.Now()
	if s.cursor > start {
		start = s.cursor
	}
	s.cursor = start + SamplesDuration(len(samples), s.sampleRate)
	s.metrics.PlaybackQueue(len(s.queue))
	return scheduled{samples: samples, at: start, epoch: s.epoch}
}

func (s *Scheduler) schedule(item scheduled) {
	s.mu.Lock()
	stale := s.closed || item.epoch != s.epoch
	s.mu.Unlock()
	if stale {
		return
	}
	s.metrics.PlaybackScheduled(SamplesDuration(len(item.samples), s.sampleRate).Seconds())
	s.out.Schedule(item.samples, item.at, func() { s.onComplete(item.epoch) })
}

func (s *Scheduler) onComplete(epoch uint64) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	if len(s.queue) == 0 {
		s.playing = false
		s.mu.Unlock()
		return
	}
	next := s.popLocked()
	s.mu.Unlock()

	s.schedule(next)
}

// Clear 清空队列并复位空闲标记；正在播放的缓冲区不强行停止，但其完成回调被忽略。
// cursor 保留，之后入队的块从被放弃缓冲区的结束时刻之后开始，输出上不会出现重叠。
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := len(s.queue)
	s.queue = nil
	s.playing = false
	s.epoch++
	s.metrics.PlaybackQueue(0)
	if dropped > 0 {
		s.logger.Debug("playback queue cleared", zap.Int("dropped", dropped))
	}
}

// Close 清空队列并释放输出，可重复调用。
func (s *Scheduler) Close() error {
	s.Clear()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.out.Close()
}

// Pending 返回排队中（未安排）的块数。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Playing 表示是否有缓冲区在输出上。
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}
