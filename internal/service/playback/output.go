package playback

import (
	"sync"
	"time"
)

// Output 音频输出设备抽象。
type Output interface {
	// Now 返回输出时钟，单调递增。
	Now() time.Duration
	// Schedule 安排 samples 在时钟 at 开始播放，自然播放结束后调用 done。
	Schedule(samples []float32, at time.Duration, done func())
	// Close 释放设备，已安排但未结束的缓冲区不再回调。
	Close() error
}

// ClockOutput 不发声的输出，只按墙上时钟推进，用于无声卡环境和 livetester。
type ClockOutput struct {
	sampleRate int
	start      time.Time

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewClockOutput 创建时钟输出。
func NewClockOutput(sampleRate int) *ClockOutput {
	return &ClockOutput{
		sampleRate: sampleRate,
		start:      time.Now(),
		timers:     make(map[*time.Timer]struct{}),
	}
}

func (o *ClockOutput) Now() time.Duration {
	return time.Since(o.start)
}

func (o *ClockOutput) Schedule(samples []float32, at time.Duration, done func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	wait := at - o.Now() + SamplesDuration(len(samples), o.sampleRate)
	if wait < 0 {
		wait = 0
	}

	var timer *time.Timer
	timer = time.AfterFunc(wait, func() {
		o.mu.Lock()
		_, live := o.timers[timer]
		delete(o.timers, timer)
		o.mu.Unlock()
		if live && done != nil {
			done()
		}
	})
	o.timers[timer] = struct{}{}
}

func (o *ClockOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	for timer := range o.timers {
		timer.Stop()
	}
	o.timers = nil
	return nil
}

// SamplesDuration 给定采样率下 n 个采样的时长。
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
