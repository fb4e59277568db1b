package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// PartType 区分消息片段的种类。
type PartType string

const (
	PartText PartType = "text"
	PartData PartType = "data"
	PartFile PartType = "file"
)

// Role 标识消息作者。
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Part 是 text | data | file 的标签联合体。
//
// data 片段的 Data 为任意 JSON 负载；file 片段的 Data 为内联的 base64 字符串。
type Part struct {
	Type     PartType        `json:"type" validate:"required,oneof=text data file"`
	Text     string          `json:"text,omitempty"`
	MimeType string          `json:"mimeType,omitempty" validate:"required_unless=Type text"`
	Data     json.RawMessage `json:"data,omitempty"`
	URL      string          `json:"url,omitempty"`
	Filename string          `json:"filename,omitempty"`
}

// TextPart 构造文本片段。
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// DataPart 将 v 编码为 JSON 后构造数据片段。
func DataPart(mimeType string, v any) (Part, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Part{}, fmt.Errorf("encode data part: %w", err)
	}
	return Part{Type: PartData, MimeType: mimeType, Data: raw}, nil
}

// DecodeData 将数据片段负载解码到 v。
func (p Part) DecodeData(v any) error {
	if len(p.Data) == 0 {
		return fmt.Errorf("part has no data payload")
	}
	return json.Unmarshal(p.Data, v)
}

// InlineData 返回文件片段的内联内容。
func (p Part) InlineData() string {
	if p.Type != PartFile || len(p.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Data, &s); err != nil {
		return ""
	}
	return s
}

// Message 是一次对话轮次。
type Message struct {
	Role      Role           `json:"role" validate:"required,oneof=user agent"`
	Parts     []Part         `json:"parts" validate:"required,min=1,dive"`
	MessageID string         `json:"messageId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentMessage 构造一条由代理发出的纯文本消息。
func AgentMessage(text string, metadata map[string]any) *Message {
	return &Message{Role: RoleAgent, Parts: []Part{TextPart(text)}, Metadata: metadata}
}

// Texts 返回消息中全部文本片段的内容。
func (m Message) Texts() []string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

// Artifact 是任务产出物。
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatus 记录任务当前状态。
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Task 是 A2A 协议中的任务实体。
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts"`
	History   []Message      `json:"history"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FindArtifact 按名称返回第一个匹配的产出物。
func (t *Task) FindArtifact(name string) (*Artifact, bool) {
	for i := range t.Artifacts {
		if t.Artifacts[i].Name == name {
			return &t.Artifacts[i], true
		}
	}
	return nil, false
}

// Clone 返回任务的深拷贝，调用方可以自由修改。元数据中 JSON 解码得到的
// map 与切片会被递归复制，其他类型的值（例如结构体切片）仍然共享。
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Status.Message = t.Status.Message.Clone()
	out.Artifacts = make([]Artifact, len(t.Artifacts))
	for i, a := range t.Artifacts {
		out.Artifacts[i] = a.Clone()
	}
	out.History = make([]Message, len(t.History))
	for i, m := range t.History {
		out.History[i] = *m.Clone()
	}
	out.Metadata = cloneMap(t.Metadata)
	return &out
}

// Clone 返回消息的深拷贝。
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Parts = cloneParts(m.Parts)
	out.Metadata = cloneMap(m.Metadata)
	return &out
}

// Clone 返回产出物的深拷贝。
func (a Artifact) Clone() Artifact {
	a.Parts = cloneParts(a.Parts)
	a.Metadata = cloneMap(a.Metadata)
	return a
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		if p.Data != nil {
			p.Data = append(json.RawMessage(nil), p.Data...)
		}
		out[i] = p
	}
	return out
}

// cloneMap 递归复制从 JSON 解码得到的 map[string]any 与 []any；
// 其他类型的值按赋值语义复制。
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case json.RawMessage:
		return append(json.RawMessage(nil), val...)
	default:
		return v
	}
}

// Now 返回协议使用的时间戳格式。
func Now(clock func() time.Time) string {
	return clock().UTC().Format(time.RFC3339Nano)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateMessage 校验消息结构。
func ValidateMessage(m *Message) error {
	if m == nil {
		return fmt.Errorf("message: required")
	}
	if err := validate.Struct(m); err != nil {
		return DescribeValidation(err)
	}
	return nil
}

// DescribeValidation 将 validator 的错误压缩为单行描述。
func DescribeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", field, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
