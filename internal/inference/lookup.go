package inference

import (
	"fmt"
	"strings"

	"relation-mapper/internal/adapter"
)

// LookupDetector 参照表（码表）检测器
type LookupDetector struct {
	adapter adapter.DBAdapter
}

// NewLookupDetector 创建检测器
func NewLookupDetector(db adapter.DBAdapter) *LookupDetector {
	return &LookupDetector{adapter: db}
}

// LookupTable 参照表
type LookupTable struct {
	Name        string  `json:"name"`
	RowCount    int64   `json:"row_count"`
	KeyColumn   string  `json:"key_column"`
	LabelColumn string  `json:"label_column"`
	Confidence  float64 `json:"confidence"`
}

// Description 节点描述文案
func (lt LookupTable) Description() string {
	if lt.LabelColumn != "" {
		return fmt.Sprintf("参照表（码表），key=%s, label=%s，约 %d 行", lt.KeyColumn, lt.LabelColumn, lt.RowCount)
	}
	return fmt.Sprintf("参照表（码表），key=%s，约 %d 行", lt.KeyColumn, lt.RowCount)
}

// Detect 检测参照表。单表行数估算失败只跳过该表
func (d *LookupDetector) Detect(meta *adapter.SchemaMetadata) []LookupTable {
	var lookups []LookupTable

	for _, table := range meta.Tables {
		rowCount, err := d.adapter.EstimateRowCount(table.Name)
		if err != nil {
			continue
		}

		// 码表特征：行数少
		if rowCount > 1000 {
			continue
		}

		keyCol, labelCol := findLookupColumns(table.Columns)
		if keyCol == "" {
			continue
		}

		confidence := lookupConfidence(table, rowCount, keyCol, labelCol)
		if confidence > 0.6 {
			lookups = append(lookups, LookupTable{
				Name:        table.Name,
				RowCount:    rowCount,
				KeyColumn:   keyCol,
				LabelColumn: labelCol,
				Confidence:  confidence,
			})
		}
	}

	return lookups
}

// findLookupColumns 查找 key/label 列组合。
// 按下划线分词精确匹配，width/province 之类不误伤
func findLookupColumns(columns []adapter.Column) (keyCol, labelCol string) {
	keyPatterns := []string{"code", "id", "key", "type"}
	labelPatterns := []string{"name", "label", "desc", "description", "value"}

	for _, col := range columns {
		if keyCol == "" && hasToken(col.Name, keyPatterns) {
			keyCol = col.Name
		}
		if labelCol == "" && hasToken(col.Name, labelPatterns) {
			labelCol = col.Name
		}
	}

	return
}

// hasToken 列名分词后是否含有给定词
func hasToken(name string, patterns []string) bool {
	for _, token := range strings.Split(strings.ToLower(name), "_") {
		for _, pattern := range patterns {
			if token == pattern {
				return true
			}
		}
	}
	return false
}

// lookupConfidence 计算码表置信度
func lookupConfidence(table adapter.Table, rowCount int64, keyCol, labelCol string) float64 {
	score := 0.0

	// 行数少加分
	if rowCount < 100 {
		score += 0.4
	} else if rowCount < 500 {
		score += 0.3
	} else {
		score += 0.2
	}

	// 有 key 和 label 列加分
	if keyCol != "" && labelCol != "" {
		score += 0.4
	} else if keyCol != "" {
		score += 0.2
	}

	// 列数少加分（典型码表列数 2-5）
	if len(table.Columns) <= 5 {
		score += 0.2
	}

	return score
}
