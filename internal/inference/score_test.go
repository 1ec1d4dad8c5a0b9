package inference

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJudge 固定返回一个评级（或错误）
type fakeJudge struct {
	level  Confidence
	err    error
	called int
}

func (f *fakeJudge) Classify(sourceTable, sourceColumn, targetTable, targetColumn string) (Confidence, error) {
	f.called++
	if f.err != nil {
		return VeryWeak, f.err
	}
	return f.level, nil
}

func TestScoreStaircase(t *testing.T) {
	// 零样本只按结构分走固定阶梯
	tests := []struct {
		structural float64
		expected   Confidence
	}{
		{1.0, VeryStrong},
		{0.92, VeryStrong},
		{0.9, Strong},
		{0.78, Strong},
		{0.6, Normal},
		{0.5, Normal},
		{0.3, Weak},
		{0.29, VeryWeak},
		{0.0, VeryWeak},
	}

	scorer := NewScorer(nil, DefaultMinSample)
	for _, tt := range tests {
		cand := Candidate{StructuralScore: tt.structural}
		level, _, _ := scorer.Score(cand, Support{})
		assert.Equal(t, tt.expected, level, "structural %.2f", tt.structural)
	}
}

func TestScoreEmpiricalDominates(t *testing.T) {
	scorer := NewScorer(nil, DefaultMinSample)

	// 结构分满 + 高匹配率 + 大样本 → very strong
	level, _, _ := scorer.Score(
		Candidate{StructuralScore: 1.0},
		Support{SampleSize: 500, MatchedFraction: 0.95},
	)
	assert.Equal(t, VeryStrong, level)

	// 命名很像但数据完全对不上 → 降到 weak
	level, _, _ = scorer.Score(
		Candidate{StructuralScore: 1.0},
		Support{SampleSize: 500, MatchedFraction: 0.0},
	)
	assert.Equal(t, Weak, level)

	// 词干匹配 + 数据全命中：0.35*0.75 + 0.65*1.0 = 0.9125 → strong
	level, _, _ = scorer.Score(
		Candidate{StructuralScore: 0.75},
		Support{SampleSize: 1000, MatchedFraction: 1.0},
	)
	assert.Equal(t, Strong, level)
}

func TestScoreSmallSampleUsesStructuralOnly(t *testing.T) {
	scorer := NewScorer(nil, 50)

	// 样本不足：匹配率再低也不影响结构分定档
	level, _, _ := scorer.Score(
		Candidate{StructuralScore: 0.9},
		Support{SampleSize: 10, MatchedFraction: 0.0},
	)
	assert.Equal(t, Strong, level)
}

func TestScoreZeroSampleIsNotEvidenceAgainst(t *testing.T) {
	// 空表无证据，不得当成"证明无关系"
	scorer := NewScorer(nil, 50)
	level, _, _ := scorer.Score(Candidate{StructuralScore: 1.0}, Support{})
	assert.Equal(t, VeryStrong, level)
}

func TestScoreMonotonicInMatchedFraction(t *testing.T) {
	// 其他条件不变，匹配率升高档位不得下降
	scorer := NewScorer(nil, 50)
	prev := VeryWeak
	for frac := 0.0; frac <= 1.0; frac += 0.05 {
		level, _, _ := scorer.Score(
			Candidate{StructuralScore: 0.75},
			Support{SampleSize: 200, MatchedFraction: frac},
		)
		require.GreaterOrEqual(t, level, prev, "fraction %.2f", frac)
		prev = level
	}
}

func TestScoreJudgeTieBreak(t *testing.T) {
	// 0.75 贴近 strong 档下界 0.78，允许外部评级在 normal/strong 之间定夺
	cand := Candidate{StructuralScore: 0.75}

	judge := &fakeJudge{level: Strong}
	level, judgment, note := NewScorer(judge, 50).Score(cand, Support{})
	assert.Equal(t, Strong, level)
	assert.Equal(t, "strong", judgment)
	assert.Empty(t, note)
	assert.Equal(t, 1, judge.called)

	judge = &fakeJudge{level: Normal}
	level, _, _ = NewScorer(judge, 50).Score(cand, Support{})
	assert.Equal(t, Normal, level)
}

func TestScoreJudgeBoundedToAdjacentBands(t *testing.T) {
	// 评级越出相邻两档时按无效处理，保持结构分定档
	judge := &fakeJudge{level: VeryStrong}
	level, judgment, _ := NewScorer(judge, 50).Score(Candidate{StructuralScore: 0.75}, Support{})
	assert.Equal(t, Normal, level)
	assert.Equal(t, "very strong", judgment)
}

func TestScoreJudgeNotConsultedAwayFromBoundary(t *testing.T) {
	// 0.6 离任何档位边界都超过 0.05，不咨询外部评级
	judge := &fakeJudge{level: VeryStrong}
	level, judgment, _ := NewScorer(judge, 50).Score(Candidate{StructuralScore: 0.6}, Support{})
	assert.Equal(t, Normal, level)
	assert.Empty(t, judgment)
	assert.Equal(t, 0, judge.called)
}

func TestScoreJudgeNotConsultedWithEnoughSamples(t *testing.T) {
	// 经验证据充足时完全不咨询外部评级
	judge := &fakeJudge{level: VeryWeak}
	level, judgment, _ := NewScorer(judge, 50).Score(
		Candidate{StructuralScore: 1.0},
		Support{SampleSize: 500, MatchedFraction: 0.95},
	)
	assert.Equal(t, VeryStrong, level)
	assert.Empty(t, judgment)
	assert.Equal(t, 0, judge.called)
}

func TestScoreJudgeFailureDegrades(t *testing.T) {
	// 外部评级失败只降级不中断
	judge := &fakeJudge{err: errors.New("服务不可用")}
	level, judgment, note := NewScorer(judge, 50).Score(Candidate{StructuralScore: 0.75}, Support{})
	assert.Equal(t, Normal, level)
	assert.Empty(t, judgment)
	assert.Contains(t, note, "服务不可用")
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		input    string
		expected Confidence
		wantErr  bool
	}{
		{"very strong", VeryStrong, false},
		{"very_strong", VeryStrong, false},
		{"Very-Strong", VeryStrong, false},
		{"weak", Weak, false},
		{"NORMAL", Normal, false},
		{"  strong  ", Strong, false},
		{"unknown", VeryWeak, true},
		{"", VeryWeak, true},
	}

	for _, tt := range tests {
		level, err := ParseConfidence(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.expected, level, "input %q", tt.input)
	}
}
