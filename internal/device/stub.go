//go:build !portaudio

package device

import (
	"context"

	"github.com/zhouzirui/emi-live/backend/internal/service/capture"
	"github.com/zhouzirui/emi-live/backend/internal/service/playback"
)

// System 默认构建下的占位设备系统。
type System struct{}

// NewSystem 默认构建总是成功，具体设备在使用时报告不可用。
func NewSystem() (*System, error) {
	return &System{}, nil
}

// Microphone 返回的音源打开时总是失败。
func (s *System) Microphone() capture.AudioSource {
	return unavailableMic{}
}

// NewSpeaker 返回不发声的时钟输出。
func (s *System) NewSpeaker(sampleRate int) (playback.Output, error) {
	return playback.NewClockOutput(sampleRate), nil
}

func (s *System) Close() error { return nil }

type unavailableMic struct{}

func (unavailableMic) Open(context.Context, int) (capture.AudioStream, error) {
	return nil, ErrUnavailable
}
