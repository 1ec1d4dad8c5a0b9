package inference

import (
	"fmt"
	"strings"
)

// Confidence 五档置信度（封闭有序枚举）
type Confidence int

const (
	VeryWeak Confidence = iota
	Weak
	Normal
	Strong
	VeryStrong
)

var confidenceNames = [...]string{"very weak", "weak", "normal", "strong", "very strong"}

func (c Confidence) String() string {
	if c < VeryWeak || c > VeryStrong {
		return fmt.Sprintf("confidence(%d)", int(c))
	}
	return confidenceNames[c]
}

// ParseConfidence 解析评级标签（兼容空格/下划线/连字符写法）
func ParseConfidence(s string) (Confidence, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "_", " ")
	normalized = strings.ReplaceAll(normalized, "-", " ")
	for i, name := range confidenceNames {
		if normalized == name {
			return Confidence(i), nil
		}
	}
	return VeryWeak, fmt.Errorf("无法识别的置信度标签: %q", s)
}

// State 候选对在流水线中的状态
type State string

const (
	StateGenerated State = "generated"
	StateSampled   State = "sampled"
	StateScored    State = "scored"
	StateIncluded  State = "included"
	StateExcluded  State = "excluded"
)
