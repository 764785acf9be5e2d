package audio

import (
	"context"
	"sync"
)

// Block 编码 worker 的一次输出：一块 PCM16 数据及其电平。
type Block struct {
	PCM   []byte
	Level float64
}

// Encoder 在独立 goroutine 中把浮点采样块编码为 PCM16。
// 每个输入块对应一次输出，输出顺序与输入顺序一致。
type Encoder struct {
	in   chan []float32
	out  chan Block
	done chan struct{}

	closeOnce sync.Once
}

// NewEncoder 创建编码 worker，buffer 为输入/输出通道的容量。
func NewEncoder(buffer int) *Encoder {
	if buffer < 1 {
		buffer = 1
	}
	return &Encoder{
		in:   make(chan []float32, buffer),
		out:  make(chan Block, buffer),
		done: make(chan struct{}),
	}
}

// Run 处理输入直到 ctx 取消或 Close 被调用，结束时关闭输出通道。
func (e *Encoder) Run(ctx context.Context) {
	defer close(e.out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case samples, ok := <-e.in:
			if !ok {
				return
			}
			block := Block{PCM: EncodePCM16(samples), Level: Level(samples)}
			select {
			case e.out <- block:
			case <-ctx.Done():
				return
			case <-e.done:
				return
			}
		}
	}
}

// Submit 投递一块采样，worker 已停止时返回 false。
func (e *Encoder) Submit(ctx context.Context, samples []float32) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.in <- samples:
		return true
	case <-ctx.Done():
		return false
	case <-e.done:
		return false
	}
}

// Output 返回编码结果通道。
func (e *Encoder) Output() <-chan Block {
	return e.out
}

// Close 停止 worker，可重复调用。
func (e *Encoder) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}
