package profile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalid 资料字段校验失败。
var ErrInvalid = errors.New("invalid profile")

// Tone 助手语气。
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneConcise      Tone = "concise"
	ToneEnthusiastic Tone = "enthusiastic"
)

// Valid 判断是否为支持的语气。
func (t Tone) Valid() bool {
	switch t {
	case ToneFriendly, ToneProfessional, ToneConcise, ToneEnthusiastic:
		return true
	}
	return false
}

// AgentConfig 助手人设。
type AgentConfig struct {
	Name               string `json:"name" yaml:"name"`
	Tone               Tone   `json:"tone" yaml:"tone"`
	CustomInstructions string `json:"customInstructions" yaml:"customInstructions"`
}

// Profile 用户偏好以及助手人设，是会话上下文的来源。
type Profile struct {
	Language string      `json:"language" yaml:"language"`
	Location string      `json:"location" yaml:"location"`
	Tags     []string    `json:"tags" yaml:"tags"`
	Agent    AgentConfig `json:"agentConfig" yaml:"agentConfig"`
}

// Default 返回默认资料。
func Default() Profile {
	return Profile{
		Language: "es",
		Location: "",
		Tags:     []string{},
		Agent: AgentConfig{
			Name: "Emi",
			Tone: ToneFriendly,
		},
	}
}

// Clone 深拷贝，避免调用方修改共享的 Tags 切片。
func (p Profile) Clone() Profile {
	out := p
	out.Tags = append([]string{}, p.Tags...)
	return out
}

// WithDefaults 用默认值补齐缺失字段，对应存储文档与默认值的合并。
func (p Profile) WithDefaults() Profile {
	def := Default()
	out := p.Clone()
	if out.Language == "" {
		out.Language = def.Language
	}
	if out.Agent.Name == "" {
		out.Agent.Name = def.Agent.Name
	}
	if !out.Agent.Tone.Valid() {
		out.Agent.Tone = def.Agent.Tone
	}
	out.Tags = normalizeTags(out.Tags)
	return out
}

// AgentPatch 人设的部分更新。
type AgentPatch struct {
	Name               *string `json:"name,omitempty"`
	Tone               *Tone   `json:"tone,omitempty"`
	CustomInstructions *string `json:"customInstructions,omitempty"`
}

// Patch 资料的部分更新，nil 字段保持不变。
type Patch struct {
	Language *string     `json:"language,omitempty"`
	Location *string     `json:"location,omitempty"`
	Tags     *[]string   `json:"tags,omitempty"`
	Agent    *AgentPatch `json:"agentConfig,omitempty"`
}

// Apply 把 patch 合并到资料上，返回新的资料。
func (p Profile) Apply(patch Patch) (Profile, error) {
	out := p.Clone()
	if patch.Language != nil {
		lang := strings.TrimSpace(*patch.Language)
		if lang == "" {
			return p, fmt.Errorf("%w: language must not be empty", ErrInvalid)
		}
		out.Language = lang
	}
	if patch.Location != nil {
		out.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.Tags != nil {
		out.Tags = normalizeTags(*patch.Tags)
	}
	if a := patch.Agent; a != nil {
		if a.Name != nil {
			name := strings.TrimSpace(*a.Name)
			if name == "" {
				return p, fmt.Errorf("%w: agent name must not be empty", ErrInvalid)
			}
			out.Agent.Name = name
		}
		if a.Tone != nil {
			if !a.Tone.Valid() {
				return p, fmt.Errorf("%w: unsupported tone %q", ErrInvalid, *a.Tone)
			}
			out.Agent.Tone = *a.Tone
		}
		if a.CustomInstructions != nil {
			out.Agent.CustomInstructions = *a.CustomInstructions
		}
	}
	return out, nil
}

// AddTag 追加标签，已存在时不变。
func (p Profile) AddTag(tag string) Profile {
	out := p.Clone()
	tag = strings.TrimSpace(tag)
	if tag == "" || slices.Contains(out.Tags, tag) {
		return out
	}
	out.Tags = append(out.Tags, tag)
	return out
}

// RemoveTag 删除标签。
func (p Profile) RemoveTag(tag string) Profile {
	out := p.Clone()
	out.Tags = slices.DeleteFunc(out.Tags, func(t string) bool { return t == tag })
	return out
}

// Fingerprint 上下文同步关心的字段摘要，可直接用 == 比较。
type Fingerprint struct {
	Language string
	Location string
	Tags     string
}

// Fingerprint 计算语言、位置、标签的指纹；标签保持顺序。
func (p Profile) Fingerprint() Fingerprint {
	return Fingerprint{
		Language: p.Language,
		Location: p.Location,
		Tags:     strings.Join(p.Tags, "\x1f"),
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}
