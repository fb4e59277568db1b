package llm

import (
	"context"
	"errors"
)

// Request 描述一次文本补全调用。MaxTokens 为 0 时使用后端默认值。
type Request struct {
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
}

// Client 定义了调用大模型的统一接口，实现必须尊重 ctx 的取消与超时。
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc 允许以函数形式实现 Client，便于测试替身。
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete 调用函数本身。
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrEmptyCompletion 表示后端返回了空文本。
var ErrEmptyCompletion = errors.New("completion backend returned empty output")
