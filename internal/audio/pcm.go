// Package audio 负责 PCM16 编解码以及实时编码 worker。
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
)

const (
	// InputSampleRate 麦克风上行采样率。
	InputSampleRate = 16000
	// OutputSampleRate 模型下行音频采样率。
	OutputSampleRate = 24000
	// BytesPerSample PCM16 单声道每个采样的字节数。
	BytesPerSample = 2
)

// ErrOddLength 表示 PCM16 字节流长度不是 2 的倍数。
var ErrOddLength = errors.New("pcm16 payload has odd length")

// EncodePCM16 把 [-1,1] 浮点采样编码为 16 位有符号小端 PCM。
// 负数乘 32768，非负数乘 32767，超出范围先截断。
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}

// DecodePCM16 把 16 位小端 PCM 解码为 [-1,1] 浮点采样，缩放系数与编码对称。
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(data)/BytesPerSample)
	for i := range out {
		out[i] = int16ToFloat(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return out, nil
}

func int16ToFloat(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}

// DecodeBase64PCM16 先做 base64 解码再解码 PCM16。
func DecodeBase64PCM16(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	return DecodePCM16(raw)
}

// Level 计算一块采样的平均绝对振幅，映射到 0-100。
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > 1 {
			v = 1
		}
		if math.IsNaN(v) {
			continue
		}
		sum += v
	}
	return sum / float64(len(samples)) * 100
}

// Duration 返回给定采样率下 n 个采样的时长（秒）。
func Duration(samples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}
