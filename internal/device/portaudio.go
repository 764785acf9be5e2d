//go:build portaudio

package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/zhouzirui/emi-live/backend/internal/service/capture"
	"github.com/zhouzirui/emi-live/backend/internal/service/playback"
)

// System 持有 PortAudio 的初始化状态。
type System struct {
	mu     sync.Mutex
	closed bool
}

// NewSystem 初始化 PortAudio。
func NewSystem() (*System, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &System{}, nil
}

// Close 终止 PortAudio，需在所有流关闭后调用。
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return portaudio.Terminate()
}

// Microphone 默认输入设备。
func (s *System) Microphone() capture.AudioSource {
	return paMicrophone{}
}

type paMicrophone struct{}

func (paMicrophone) Open(_ context.Context, sampleRate int) (capture.AudioStream, error) {
	buf := make([]float32, InputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	return &paInput{stream: stream, buf: buf}, nil
}

type paInput struct {
	stream *portaudio.Stream
	buf    []float32

	mu     sync.Mutex
	closed bool
}

// Read 阻塞读取一块采样，返回独立拷贝。
func (in *paInput) Read() ([]float32, error) {
	in.mu.Lock()
	closed := in.closed
	in.mu.Unlock()
	if closed {
		return nil, ErrUnavailable
	}
	if err := in.stream.Read(); err != nil {
		return nil, err
	}
	return append([]float32(nil), in.buf...), nil
}

func (in *paInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	_ = in.stream.Stop()
	return in.stream.Close()
}

// NewSpeaker 打开默认输出设备。设备时钟以已写入的帧数计算，空闲时持续写入静音。
func (s *System) NewSpeaker(sampleRate int) (playback.Output, error) {
	buf := make([]float32, OutputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	sp := &paSpeaker{
		stream:     stream,
		buf:        buf,
		sampleRate: sampleRate,
		items:      make(chan speakerItem, 4),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go sp.loop()
	return sp, nil
}

type speakerItem struct {
	samples []float32
	at      time.Duration
	done    func()
}

type paSpeaker struct {
	stream     *portaudio.Stream
	buf        []float32
	sampleRate int

	mu      sync.Mutex
	written int64

	items chan speakerItem
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (sp *paSpeaker) Now() time.Duration {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return playback.SamplesDuration(int(sp.written), sp.sampleRate)
}

func (sp *paSpeaker) Schedule(samples []float32, at time.Duration, done func()) {
	select {
	case sp.items <- speakerItem{samples: samples, at: at, done: done}:
	case <-sp.stop:
	}
}

// loop 把排队的缓冲区按 at 对齐写入设备；缓冲区全部交给设备后回调 done。
func (sp *paSpeaker) loop() {
	defer close(sp.done)
	var current *speakerItem
	offset := 0

	for {
		select {
		case <-sp.stop:
			return
		default:
		}

		if current == nil {
			select {
			case item := <-sp.items:
				current = &item
				offset = 0
			default:
			}
		}

		n := 0
		if current != nil && sp.Now() >= current.at {
			n = copy(sp.buf, current.samples[offset:])
			offset += n
		}
		for i := n; i < len(sp.buf); i++ {
			sp.buf[i] = 0
		}

		// 下溢不致命，继续写。
		_ = sp.stream.Write()
		sp.mu.Lock()
		sp.written += int64(len(sp.buf))
		sp.mu.Unlock()

		if current != nil && offset >= len(current.samples) {
			finished := current
			current = nil
			if finished.done != nil {
				finished.done()
			}
		}
	}
}

func (sp *paSpeaker) Close() error {
	var err error
	sp.once.Do(func() {
		close(sp.stop)
		<-sp.done
		_ = sp.stream.Stop()
		err = sp.stream.Close()
	})
	return err
}
