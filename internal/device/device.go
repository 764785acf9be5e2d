// Package device 提供本地音视频设备：麦克风、扬声器和摄像头快照。
// 默认构建不链接 PortAudio，麦克风返回 ErrUnavailable、扬声器使用时钟输出；
// 使用 -tags portaudio 构建时接入真实声卡。
package device

import (
	"fmt"

	"github.com/zhouzirui/emi-live/backend/internal/service/capture"
)

// ErrUnavailable 设备在当前构建或环境中不可用。
var ErrUnavailable = fmt.Errorf("audio device: %w", capture.ErrDeviceUnavailable)

const (
	// InputFramesPerBuffer 16kHz 下 100ms。
	InputFramesPerBuffer = 1600
	// OutputFramesPerBuffer 24kHz 下 40ms。
	OutputFramesPerBuffer = 960
)
