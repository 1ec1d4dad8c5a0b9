package inference

import (
	"sort"
	"strings"

	"relation-mapper/internal/adapter"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// MatchRule 候选对的命中规则
type MatchRule string

const (
	RuleDeclaredFK    MatchRule = "declared_fk"
	RulePKNameMatch   MatchRule = "pk_name_match"
	RuleStemMatch     MatchRule = "stem_match"
	RuleSelfReference MatchRule = "self_reference"
)

// 各规则对应的结构分。规则一旦命中不再重评
const (
	scoreDeclaredFK    = 1.0
	scorePKNameMatch   = 0.9
	scoreStemMatch     = 0.75
	scoreSelfReference = 0.6
)

// Candidate 候选关系对（单轮分析内生成和消费，不落盘）
type Candidate struct {
	SourceTable     string    `json:"source_table"`
	SourceColumn    string    `json:"source_column"`
	TargetTable     string    `json:"target_table"`
	TargetColumn    string    `json:"target_column"`
	StructuralScore float64   `json:"structural_score"`
	Rule            MatchRule `json:"rule"`
}

// UnmatchedColumn 未命中任何规则的疑似键列。
// 不生成候选，但仍出现在图节点的字段清单里
type UnmatchedColumn struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	// Hint 名称最接近的表（仅作报告提示）
	Hint string `json:"hint,omitempty"`
}

// GenerateCandidates 从表集合生成候选对。
// 纯函数：同一表集合必然产出同一候选集和分数
func GenerateCandidates(tables []adapter.Table) ([]Candidate, []UnmatchedColumn) {
	sorted := make([]adapter.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	pkMap := make(map[string]string, len(sorted))
	for _, t := range sorted {
		if pk, ok := EffectivePrimaryKey(t); ok {
			pkMap[t.Name] = pk
		}
	}

	var candidates []Candidate
	var unmatched []UnmatchedColumn

	for _, t := range sorted {
		ownPK := pkMap[t.Name]
		for _, col := range t.Columns {
			// 规则1：声明外键，即使落在主键列上也成立
			if fk, ok := t.DeclaredForeignKey(col.Name); ok {
				candidates = append(candidates, Candidate{
					SourceTable:     t.Name,
					SourceColumn:    col.Name,
					TargetTable:     fk.ToTable,
					TargetColumn:    fk.ToColumn,
					StructuralScore: scoreDeclaredFK,
					Rule:            RuleDeclaredFK,
				})
				continue
			}

			// 主键列本身不再参与外键推断
			if col.Name == ownPK {
				continue
			}

			if cand, ok := matchByPKName(t, col, sorted, pkMap); ok {
				candidates = append(candidates, cand)
				continue
			}
			if cand, ok := matchByStem(t, col, sorted, pkMap); ok {
				candidates = append(candidates, cand)
				continue
			}
			if cand, ok := matchSelfReference(t, col, ownPK); ok {
				candidates = append(candidates, cand)
				continue
			}

			if isKeyLike(col.Name) {
				unmatched = append(unmatched, UnmatchedColumn{
					Table:  t.Name,
					Column: col.Name,
					Hint:   closestTable(col.Name, t.Name, sorted),
				})
			}
		}
	}

	return candidates, unmatched
}

// matchByPKName 规则2：列名与另一张表的主键同名
func matchByPKName(t adapter.Table, col adapter.Column, tables []adapter.Table, pkMap map[string]string) (Candidate, bool) {
	lower := strings.ToLower(col.Name)
	// 裸 "id" 会匹配到所有表的主键，不具区分度
	if lower == "id" {
		return Candidate{}, false
	}
	// 表按名称有序，歧义时取字典序最小的表
	for _, other := range tables {
		if other.Name == t.Name {
			continue
		}
		pk, ok := pkMap[other.Name]
		if !ok || !strings.EqualFold(pk, col.Name) {
			continue
		}
		return Candidate{
			SourceTable:     t.Name,
			SourceColumn:    col.Name,
			TargetTable:     other.Name,
			TargetColumn:    pk,
			StructuralScore: scorePKNameMatch,
			Rule:            RulePKNameMatch,
		}, true
	}
	return Candidate{}, false
}

// matchByStem 规则3：<stem>_id 且 stem 单数化后命中另一张表
func matchByStem(t adapter.Table, col adapter.Column, tables []adapter.Table, pkMap map[string]string) (Candidate, bool) {
	lower := strings.ToLower(col.Name)
	if !strings.HasSuffix(lower, "_id") {
		return Candidate{}, false
	}
	stem := strings.TrimSuffix(lower, "_id")
	if stem == "" {
		return Candidate{}, false
	}
	for _, other := range tables {
		if other.Name == t.Name {
			continue
		}
		pk, ok := pkMap[other.Name]
		if !ok {
			continue
		}
		otherLower := strings.ToLower(other.Name)
		if otherLower == stem || singularize(otherLower) == stem {
			return Candidate{
				SourceTable:     t.Name,
				SourceColumn:    col.Name,
				TargetTable:     other.Name,
				TargetColumn:    pk,
				StructuralScore: scoreStemMatch,
				Rule:            RuleStemMatch,
			}, true
		}
	}
	return Candidate{}, false
}

// matchSelfReference 规则4：parent_<own-stem>_id 之类的自引用列。
// 这是"候选对必须跨表"不变量的唯一例外
func matchSelfReference(t adapter.Table, col adapter.Column, ownPK string) (Candidate, bool) {
	if ownPK == "" {
		return Candidate{}, false
	}
	lower := strings.ToLower(col.Name)
	if !strings.HasPrefix(lower, "parent_") || !strings.HasSuffix(lower, "_id") {
		if lower != "parent_id" {
			return Candidate{}, false
		}
	}
	if lower != "parent_id" {
		stem := strings.TrimSuffix(strings.TrimPrefix(lower, "parent_"), "_id")
		ownLower := strings.ToLower(t.Name)
		if stem != ownLower && stem != singularize(ownLower) {
			return Candidate{}, false
		}
	}
	return Candidate{
		SourceTable:     t.Name,
		SourceColumn:    col.Name,
		TargetTable:     t.Name,
		TargetColumn:    ownPK,
		StructuralScore: scoreSelfReference,
		Rule:            RuleSelfReference,
	}, true
}

// EffectivePrimaryKey 表的有效主键：声明主键优先，
// 其次是名为 id 的列，再次是唯一的键形列（含自增列）。
// 找不到可用主键时返回 false
func EffectivePrimaryKey(t adapter.Table) (string, bool) {
	if len(t.PrimaryKey) > 0 {
		return t.PrimaryKey[0], true
	}
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, "id") {
			return col.Name, true
		}
	}
	for _, col := range t.Columns {
		if isKeyLike(col.Name) && (col.IsUnique || col.IsAutoIncrement) {
			return col.Name, true
		}
	}
	return "", false
}

// isKeyLike 名称上疑似键的列。
// 要求 id 按下划线独立成词，paid/valid/grid 之类不算
func isKeyLike(name string) bool {
	for _, token := range strings.Split(strings.ToLower(name), "_") {
		if token == "id" {
			return true
		}
	}
	return false
}

// singularize 朴素单数化：categories -> category, orders -> order
func singularize(name string) string {
	switch {
	case strings.HasSuffix(name, "ies") && len(name) > 3:
		return name[:len(name)-3] + "y"
	case strings.HasSuffix(name, "ses") || strings.HasSuffix(name, "xes") ||
		strings.HasSuffix(name, "zes") || strings.HasSuffix(name, "ches") ||
		strings.HasSuffix(name, "shes"):
		return name[:len(name)-2]
	case strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss"):
		return name[:len(name)-1]
	}
	return name
}

// closestTable 名称最接近的其他表，相似度不足则返回空
func closestTable(column, ownTable string, tables []adapter.Table) string {
	stem := strings.TrimSuffix(strings.ToLower(column), "_id")
	best := ""
	bestScore := 0.0
	for _, t := range tables {
		if t.Name == ownTable {
			continue
		}
		score := nameSimilarity(stem, strings.ToLower(t.Name))
		if score > bestScore {
			best = t.Name
			bestScore = score
		}
	}
	if bestScore < 0.6 {
		return ""
	}
	return best
}

// nameSimilarity 基于 Levenshtein 距离的名称相似度
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	return 1.0 - float64(distance)/float64(maxLen)
}
