package renderer

import (
	"encoding/csv"
	"fmt"
	"strings"

	"relation-mapper/internal/inference"
)

// CSVRenderer 关系记录 CSV 渲染器。
// 每条已验证关系一行，这是分析结果的规范持久化格式
type CSVRenderer struct{}

// NewCSVRenderer 创建渲染器
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

// Render 渲染为 CSV
func (r *CSVRenderer) Render(rels []inference.Relationship) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{
		"source_table", "source_column", "target_table", "target_column",
		"confidence_level", "matched_fraction", "sample_size",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, rel := range rels {
		record := []string{
			rel.SourceTable,
			rel.SourceColumn,
			rel.TargetTable,
			rel.TargetColumn,
			rel.Confidence.String(),
			fmt.Sprintf("%.4f", rel.MatchedFraction),
			fmt.Sprintf("%d", rel.SampleSize),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}
