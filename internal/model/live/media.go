package live

import "encoding/base64"

const (
	MIMEAudioPCM  = "audio/pcm"
	MIMEImageJPEG = "image/jpeg"
)

// MediaChunk 上行的一块媒体数据，Data 为 base64 编码，创建后不再修改。
type MediaChunk struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// NewAudioChunk 用 PCM16 字节创建音频块。
func NewAudioChunk(pcm []byte) MediaChunk {
	return MediaChunk{MIMEType: MIMEAudioPCM, Data: base64.StdEncoding.EncodeToString(pcm)}
}

// NewImageChunk 用 JPEG 字节创建图像块。
func NewImageChunk(jpeg []byte) MediaChunk {
	return MediaChunk{MIMEType: MIMEImageJPEG, Data: base64.StdEncoding.EncodeToString(jpeg)}
}

// ToolInvocation 模型发起的一次工具调用。
type ToolInvocation struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}
