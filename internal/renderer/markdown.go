package renderer

import (
	"fmt"
	"strings"

	"relation-mapper/internal/inference"
)

// MarkdownRenderer 分析报告渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render 渲染为 Markdown 格式
func (m *MarkdownRenderer) Render(result *inference.Result) string {
	var sb strings.Builder

	sb.WriteString("# 数据库关系分析报告\n\n")

	sb.WriteString("## 关系清单\n\n")
	if len(result.Relationships) == 0 {
		sb.WriteString("未发现任何候选关系。\n\n")
	} else {
		sb.WriteString("| 源 | 目标 | 置信度 | 匹配率 | 样本数 | 基数 | 状态 |\n")
		sb.WriteString("|----|------|--------|--------|--------|------|------|\n")
		for _, rel := range result.Relationships {
			sb.WriteString(fmt.Sprintf("| %s.%s | %s.%s | %s | %.1f%% | %d | %s | %s |\n",
				rel.SourceTable, rel.SourceColumn,
				rel.TargetTable, rel.TargetColumn,
				rel.Confidence,
				rel.MatchedFraction*100,
				rel.SampleSize,
				rel.Cardinality,
				rel.State,
			))
		}
		sb.WriteString("\n")
	}

	m.renderDegradations(&sb, result)

	if len(result.Unmatched) > 0 {
		sb.WriteString("## 未命中的疑似键列\n\n")
		for _, uc := range result.Unmatched {
			if uc.Hint != "" {
				sb.WriteString(fmt.Sprintf("- `%s.%s`（名称接近表 %s）\n", uc.Table, uc.Column, uc.Hint))
			} else {
				sb.WriteString(fmt.Sprintf("- `%s.%s`\n", uc.Table, uc.Column))
			}
		}
		sb.WriteString("\n")
	}

	if len(result.Lookups) > 0 {
		sb.WriteString("## 参照表（码表）\n\n")
		for _, lt := range result.Lookups {
			sb.WriteString(fmt.Sprintf("- **%s**（行数: %d, 置信度: %.2f）key=%s",
				lt.Name, lt.RowCount, lt.Confidence, lt.KeyColumn))
			if lt.LabelColumn != "" {
				sb.WriteString(fmt.Sprintf(", label=%s", lt.LabelColumn))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	var untracked []string
	for _, table := range result.Tables {
		if _, ok := inference.EffectivePrimaryKey(table); !ok {
			untracked = append(untracked, table.Name)
		}
	}
	if len(untracked) > 0 {
		sb.WriteString("## 无可用主键的表\n\n")
		sb.WriteString("以下表既无声明主键也推断不出有效主键，不参与关系推断的目标侧：\n\n")
		for _, name := range untracked {
			sb.WriteString(fmt.Sprintf("- %s\n", name))
		}
		sb.WriteString("\n")
	}

	if len(result.Skipped) > 0 {
		sb.WriteString("## 跳过的表\n\n")
		for _, st := range result.Skipped {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", st.Name, st.Reason))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderDegradations 渲染降级说明（采样失败、外部评级失败）
func (m *MarkdownRenderer) renderDegradations(sb *strings.Builder, result *inference.Result) {
	var notes []string
	for _, rel := range result.Relationships {
		if rel.SamplingNote != "" {
			notes = append(notes, fmt.Sprintf("- `%s.%s -> %s.%s` 按无证据处理：%s",
				rel.SourceTable, rel.SourceColumn, rel.TargetTable, rel.TargetColumn, rel.SamplingNote))
		}
		if rel.JudgmentNote != "" {
			notes = append(notes, fmt.Sprintf("- `%s.%s -> %s.%s` 仅按结构+经验评分：%s",
				rel.SourceTable, rel.SourceColumn, rel.TargetTable, rel.TargetColumn, rel.JudgmentNote))
		}
	}
	if len(notes) == 0 {
		return
	}
	sb.WriteString("## 降级说明\n\n")
	for _, n := range notes {
		sb.WriteString(n + "\n")
	}
	sb.WriteString("\n")
}
