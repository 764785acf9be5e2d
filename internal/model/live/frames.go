package live

// ResponseModalityAudio 唯一使用的响应模态。
const ResponseModalityAudio = "AUDIO"

// SetupFrame 握手帧，每个连接只发送一次。
type SetupFrame struct {
	Setup Setup `json:"setup"`
}

type Setup struct {
	Model             string           `json:"model"`
	GenerationConfig  GenerationConfig `json:"generation_config"`
	SystemInstruction *Content         `json:"system_instruction,omitempty"`
	Tools             []Tool           `json:"tools,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"response_modalities"`
	SpeechConfig       *SpeechConfig `json:"speech_config,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voice_config"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

// Content 一轮对话内容，目前只使用文本 part。
type Content struct {
	Role  string     `json:"role,omitempty"`
	Parts []TextPart `json:"parts"`
}

type TextPart struct {
	Text string `json:"text"`
}

// Tool 工具目录项。
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"function_declarations"`
}

type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema 函数参数的 OpenAPI 子集。
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// NewSetupFrame 组装握手帧。
func NewSetupFrame(model, voice, systemInstruction string, tools []Tool) SetupFrame {
	frame := SetupFrame{Setup: Setup{
		Model: model,
		GenerationConfig: GenerationConfig{
			ResponseModalities: []string{ResponseModalityAudio},
		},
		Tools: tools,
	}}
	if voice != "" {
		frame.Setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	if systemInstruction != "" {
		frame.Setup.SystemInstruction = &Content{Parts: []TextPart{{Text: systemInstruction}}}
	}
	return frame
}

// RealtimeInputFrame 实时媒体帧。
type RealtimeInputFrame struct {
	RealtimeInput RealtimeInput `json:"realtime_input"`
}

type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"media_chunks"`
}

// NewMediaFrame 每帧只携带一个媒体块。
func NewMediaFrame(chunk MediaChunk) RealtimeInputFrame {
	return RealtimeInputFrame{RealtimeInput: RealtimeInput{MediaChunks: []MediaChunk{chunk}}}
}

// ClientContentFrame 文本轮次或单独的 turn_complete 信号。
type ClientContentFrame struct {
	ClientContent ClientContent `json:"client_content"`
}

type ClientContent struct {
	Turns        []Content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turn_complete"`
}

// NewUserTurn 构造一条已完成的用户文本轮次。
func NewUserTurn(text string) ClientContentFrame {
	return ClientContentFrame{ClientContent: ClientContent{
		Turns:        []Content{{Role: "user", Parts: []TextPart{{Text: text}}}},
		TurnComplete: true,
	}}
}

// NewTurnComplete 只包含 turn_complete 的帧。
func NewTurnComplete() ClientContentFrame {
	return ClientContentFrame{ClientContent: ClientContent{TurnComplete: true}}
}

// ToolResponseFrame 工具结果帧。
type ToolResponseFrame struct {
	ToolResponse ToolResponse `json:"tool_response"`
}

type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"function_responses"`
}

type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response"`
}

// NewToolResult 成功结果，放在 response.result 下。
func NewToolResult(inv ToolInvocation, result any) ToolResponseFrame {
	return newToolResponse(inv, map[string]any{"result": result})
}

// NewToolError 失败结果，放在 response.error 下。
func NewToolError(inv ToolInvocation, message string) ToolResponseFrame {
	return newToolResponse(inv, map[string]any{"error": message})
}

func newToolResponse(inv ToolInvocation, response map[string]any) ToolResponseFrame {
	return ToolResponseFrame{ToolResponse: ToolResponse{
		FunctionResponses: []FunctionResponse{{ID: inv.ID, Name: inv.Name, Response: response}},
	}}
}
