package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoChoices 上游返回了空的 choices
	ErrNoChoices = errors.New("llm response has no choices")
	// ErrEmptyContent 首个 choice 只有空白
	ErrEmptyContent = errors.New("llm response content is empty")
)

// FirstContent 首个 choice 去掉首尾空白后的文本。
// 空白回复按错误处理，调用方不会把它当成发言。
func FirstContent(resp *ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	choice := resp.Choices[0]
	if text := strings.TrimSpace(choice.Message.Content); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("%w (finish_reason=%q)", ErrEmptyContent, choice.FinishReason)
}
