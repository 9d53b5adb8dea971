package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFeedback 人工审核载荷既不是 true 也不是非空字符串
var ErrInvalidFeedback = errors.New("invalid plan feedback")

// PlanFeedback 人工审核结果
type PlanFeedback struct {
	Approved bool   `json:"approved"`
	Text     string `json:"text,omitempty"`
}

// ParseFeedback 校验审核载荷：true 表示通过，非空字符串表示修改意见
func ParseFeedback(v any) (*PlanFeedback, error) {
	switch fb := v.(type) {
	case bool:
		if fb {
			return &PlanFeedback{Approved: true}, nil
		}
		return nil, fmt.Errorf("%w: false is not accepted, pass true to approve or a string with feedback", ErrInvalidFeedback)
	case string:
		if strings.TrimSpace(fb) == "" {
			return nil, fmt.Errorf("%w: feedback text is empty", ErrInvalidFeedback)
		}
		return &PlanFeedback{Text: fb}, nil
	default:
		return nil, fmt.Errorf("%w: payload of type %T is not supported", ErrInvalidFeedback, v)
	}
}
