package inference

import "fmt"

// Judge 外部评级提供方：按固定评分标准对未验证的候选对给出五档评级。
// 纯咨询性质，nil 表示能力缺失，此时仅用结构分与经验证据评分
type Judge interface {
	Classify(sourceTable, sourceColumn, targetTable, targetColumn string) (Confidence, error)
}

// 评分组合的固定参数。阈值是文档化的固定阶梯，不随运行重推
const (
	// 五档阶梯的下界：低于 weakFloor 为 very weak，依此类推
	weakFloor       = 0.30
	normalFloor     = 0.50
	strongFloor     = 0.78
	veryStrongFloor = 0.92

	// 综合分落在档位边界 ±boundaryEpsilon 内视为"贴边"，
	// 允许外部评级在相邻两档之间定夺
	boundaryEpsilon = 0.05

	// 样本充足时的加权：经验证据占大头
	structuralWeight = 0.35
	empiricalWeight  = 0.65
)

// DefaultMinSample 经验证据开始主导评分的最小样本量
const DefaultMinSample = 50

// Scorer 置信度评分器：合并结构分、经验证据和可选的外部评级
type Scorer struct {
	judge     Judge
	minSample int
}

// NewScorer 创建评分器。judge 可为 nil
func NewScorer(judge Judge, minSample int) *Scorer {
	if minSample <= 0 {
		minSample = DefaultMinSample
	}
	return &Scorer{judge: judge, minSample: minSample}
}

// Score 给单个候选对评级。
// 返回最终档位、外部评级标签（空表示未咨询）和外部评级失败说明。
// 样本量达到 minSample 时经验证据主导；零样本只按结构分算，
// 不把"无证据"当扣分项；样本不足时结构分为准，外部评级只在
// 综合分贴近档位边界时于相邻两档之间定夺
func (s *Scorer) Score(cand Candidate, sup Support) (Confidence, string, string) {
	if sup.SampleSize >= s.minSample {
		combined := structuralWeight*cand.StructuralScore + empiricalWeight*sup.MatchedFraction
		return levelOf(combined), "", ""
	}

	level := levelOf(cand.StructuralScore)
	lower, upper, near := adjacentBands(cand.StructuralScore)
	if !near || s.judge == nil {
		return level, "", ""
	}

	judgment, err := s.judge.Classify(cand.SourceTable, cand.SourceColumn, cand.TargetTable, cand.TargetColumn)
	if err != nil {
		// 外部评级失败只降级不中断，评分回落到结构+经验
		return level, "", fmt.Sprintf("外部评级失败: %v", err)
	}
	if judgment == lower || judgment == upper {
		level = judgment
	}
	return level, judgment.String(), ""
}

// levelOf 固定阶梯：综合分到五档的映射
func levelOf(score float64) Confidence {
	switch {
	case score >= veryStrongFloor:
		return VeryStrong
	case score >= strongFloor:
		return Strong
	case score >= normalFloor:
		return Normal
	case score >= weakFloor:
		return Weak
	default:
		return VeryWeak
	}
}

// adjacentBands 分数贴近哪条档位边界，以及边界两侧的档位
func adjacentBands(score float64) (Confidence, Confidence, bool) {
	boundaries := []struct {
		floor float64
		lower Confidence
	}{
		{weakFloor, VeryWeak},
		{normalFloor, Weak},
		{strongFloor, Normal},
		{veryStrongFloor, Strong},
	}
	for _, b := range boundaries {
		diff := score - b.floor
		if diff >= -boundaryEpsilon && diff <= boundaryEpsilon {
			return b.lower, b.lower + 1, true
		}
	}
	return VeryWeak, VeryWeak, false
}
