package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"Danni-Agent/internal/llm"
)

const defaultExecutable = "claude"

var defaultArgs = []string{"-p", "--output-format", "text"}

// Config 描述本地 CLI 后端。
type Config struct {
	Executable string
	Args       []string
	WorkingDir string
}

// Client 通过调用本地命令行程序完成推理，提示词经 stdin 传入。
type Client struct {
	executable string
	args       []string
	workingDir string
}

// NewClient 创建 CLI 客户端。未配置时默认执行 `claude -p --output-format text`。
func NewClient(cfg Config) *Client {
	exe := strings.TrimSpace(cfg.Executable)
	args := cfg.Args
	if exe == "" {
		exe = defaultExecutable
		if args == nil {
			args = defaultArgs
		}
	}
	return &Client{
		executable: exe,
		args:       append([]string(nil), args...),
		workingDir: cfg.WorkingDir,
	}
}

// BuildPrompt 将系统提示与用户请求拼接为单个提示词。
func BuildPrompt(req llm.Request) string {
	return req.SystemPrompt + "\n\n---\n\nUser Request:\n" + req.UserMessage
}

// Complete 运行子进程并返回去除首尾空白的标准输出。ctx 取消时子进程被杀死。
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	command := exec.CommandContext(ctx, c.executable, c.args...)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = strings.NewReader(BuildPrompt(req))

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s 进程被终止: %w", c.executable, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("%s exited with code %d", c.executable, exitErr.ExitCode())
			if detail := strings.TrimSpace(stderr.String()); detail != "" {
				msg += "\nStderr: " + detail
			}
			return "", errors.New(msg)
		}
		return "", fmt.Errorf("启动 %s 失败: %w", c.executable, err)
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		return "", llm.ErrEmptyCompletion
	}
	return output, nil
}
