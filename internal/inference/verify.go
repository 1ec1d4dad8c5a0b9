package inference

import (
	"sort"

	"relation-mapper/internal/adapter"
)

// Cardinality 基数形态（由样本去重值比例推断）
type Cardinality string

const (
	CardinalityUnknown    Cardinality = "unknown"
	CardinalityOneToOne   Cardinality = "one_to_one"
	CardinalityOneToMany  Cardinality = "one_to_many"
	CardinalityManyToMany Cardinality = "many_to_many"
)

// Support 数据验证产出的经验证据，附着在唯一一个候选对上。
// SampleSize 为 0 表示"无证据"，评分时不得当成"证明无关系"
type Support struct {
	SampleSize      int         `json:"sample_size"`
	MatchedFraction float64     `json:"matched_fraction"`
	Cardinality     Cardinality `json:"cardinality"`
}

// Verifier 数据验证器：带着源样本对目标列做半连接校验，不做全表 JOIN
type Verifier struct {
	adapter    adapter.DBAdapter
	sampleSize int
}

// NewVerifier 创建验证器
func NewVerifier(db adapter.DBAdapter, sampleSize int) *Verifier {
	return &Verifier{adapter: db, sampleSize: sampleSize}
}

// Verify 对单个候选对做引用完整性抽样。
// 匹配率是"采到的源值有多大比例真实存在于目标列"：拿源样本的去重值
// 去目标列做半连接过滤，查询成本受样本大小约束，与目标表规模无关。
// 采样失败时软降级：返回零样本 Support 和失败说明，不中止流水线
func (v *Verifier) Verify(cand Candidate, tables map[string]adapter.Table) (Support, string) {
	none := Support{Cardinality: CardinalityUnknown}

	srcValues, err := v.adapter.SampleColumnValues(cand.SourceTable, cand.SourceColumn, v.sampleSize)
	if err != nil {
		return none, err.Error()
	}
	if len(srcValues) == 0 {
		// 空表或全 NULL：无证据，不是反证
		return none, ""
	}

	// 目标侧空表同样是无证据
	probe, err := v.adapter.DistinctValues(cand.TargetTable, cand.TargetColumn, 1)
	if err != nil {
		return none, err.Error()
	}
	if len(probe) == 0 {
		return none, ""
	}

	srcDistinct := make(map[string]struct{}, len(srcValues))
	for _, val := range srcValues {
		srcDistinct[val] = struct{}{}
	}
	distinct := make([]string, 0, len(srcDistinct))
	for val := range srcDistinct {
		distinct = append(distinct, val)
	}
	sort.Strings(distinct)

	existing, err := v.adapter.FilterExisting(cand.TargetTable, cand.TargetColumn, distinct)
	if err != nil {
		return none, err.Error()
	}
	existSet := make(map[string]struct{}, len(existing))
	for _, val := range existing {
		existSet[val] = struct{}{}
	}

	matched := 0
	for _, val := range srcValues {
		if _, ok := existSet[val]; ok {
			matched++
		}
	}

	return Support{
		SampleSize:      len(srcValues),
		MatchedFraction: float64(matched) / float64(len(srcValues)),
		Cardinality:     inferCardinality(cand, srcValues, srcDistinct, tables),
	}, ""
}

// inferCardinality 由源侧去重比例和目标侧唯一性推断基数形态
func inferCardinality(cand Candidate, srcValues []string, srcDistinct map[string]struct{}, tables map[string]adapter.Table) Cardinality {
	targetUnique := false
	if t, ok := tables[cand.TargetTable]; ok {
		if col, ok := t.Column(cand.TargetColumn); ok {
			targetUnique = col.IsUnique || col.IsPrimaryKey
		}
	}
	if !targetUnique {
		return CardinalityManyToMany
	}

	distinctRatio := float64(len(srcDistinct)) / float64(len(srcValues))
	if distinctRatio >= 0.99 {
		return CardinalityOneToOne
	}
	return CardinalityOneToMany
}
