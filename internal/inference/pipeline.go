package inference

import (
	"fmt"
	"sort"

	"relation-mapper/internal/adapter"
	"relation-mapper/internal/graph"

	"golang.org/x/sync/errgroup"
)

// Options 流水线参数
type Options struct {
	// SampleSize 单列采样上限
	SampleSize int
	// MinSample 经验证据开始主导评分的最小样本量
	MinSample int
	// Workers 数据验证的并发度
	Workers int
	// IncludeThreshold 达到该档位的关系才进图
	IncludeThreshold Confidence
}

// DefaultSampleSize 默认采样大小
const DefaultSampleSize = 1000

func (o Options) withDefaults() Options {
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.MinSample <= 0 {
		o.MinSample = DefaultMinSample
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	// very weak 只记录不入图，阈值下限是 weak
	if o.IncludeThreshold <= VeryWeak || o.IncludeThreshold > VeryStrong {
		o.IncludeThreshold = Weak
	}
	return o
}

// Relationship 验证过的关系：候选对 + 经验证据 + 置信度。
// 这是分析的持久化输出单元，每条接受的关系一行
type Relationship struct {
	Candidate
	Support
	Confidence  Confidence `json:"-"`
	Level       string     `json:"confidence_level"`
	State       State      `json:"state"`
	UsedInGraph bool       `json:"used_in_graph"`
	// Judgment 外部评级标签，空表示未咨询
	Judgment string `json:"judgment,omitempty"`
	// SamplingNote 采样降级原因，空表示采样正常
	SamplingNote string `json:"sampling_note,omitempty"`
	// JudgmentNote 外部评级失败原因，空表示正常
	JudgmentNote string `json:"judgment_note,omitempty"`
}

// Result 一轮完整分析的产物
type Result struct {
	Tables        []adapter.Table
	Skipped       []adapter.SkippedTable
	Relationships []Relationship
	Unmatched     []UnmatchedColumn
	Lookups       []LookupTable
	Graph         *graph.Graph
}

// Engine 关系推断引擎。
// 单向流水线：内省 → 生成候选 → 数据验证 → 评分 → 建图。
// 对源库只读且幂等，中途放弃后重跑即可续作
type Engine struct {
	adapter  adapter.DBAdapter
	judge    Judge
	opts     Options
	progress func(string)
}

// NewEngine 创建引擎。judge 可为 nil（外部评级能力缺失）
func NewEngine(db adapter.DBAdapter, judge Judge, opts Options) *Engine {
	return &Engine{
		adapter: db,
		judge:   judge,
		opts:    opts.withDefaults(),
	}
}

// SetProgress 设置进度回调（CLI 打印、服务端推送共用）
func (e *Engine) SetProgress(fn func(string)) {
	e.progress = fn
}

func (e *Engine) report(format string, args ...interface{}) {
	if e.progress != nil {
		e.progress(fmt.Sprintf(format, args...))
	}
}

// Run 执行一轮完整分析
func (e *Engine) Run() (*Result, error) {
	e.report("获取数据库元数据...")
	meta, err := e.adapter.IntrospectSchema()
	if err != nil {
		return nil, err
	}
	e.report("发现 %d 个表（跳过 %d 个）", len(meta.Tables), len(meta.Skipped))

	candidates, unmatched := GenerateCandidates(meta.Tables)
	e.report("生成 %d 个候选对，%d 个未命中的疑似键列", len(candidates), len(unmatched))

	tableMap := make(map[string]adapter.Table, len(meta.Tables))
	for _, t := range meta.Tables {
		tableMap[t.Name] = t
	}

	verifier := NewVerifier(e.adapter, e.opts.SampleSize)
	scorer := NewScorer(e.judge, e.opts.MinSample)

	// 逐候选验证互相独立，放进有界并发池。
	// 每个候选写自己的槽位，结果按候选身份合并，与完成顺序无关
	rels := make([]Relationship, len(candidates))
	var group errgroup.Group
	group.SetLimit(e.opts.Workers)
	for i, cand := range candidates {
		i, cand := i, cand
		group.Go(func() error {
			rel := Relationship{Candidate: cand, State: StateGenerated}

			sup, note := verifier.Verify(cand, tableMap)
			rel.Support = sup
			rel.SamplingNote = note
			rel.State = StateSampled

			level, judgment, jnote := scorer.Score(cand, sup)
			rel.Confidence = level
			rel.Level = level.String()
			rel.Judgment = judgment
			rel.JudgmentNote = jnote
			rel.State = StateScored

			// 未达阈值的关系仍然记录在案，只是不进图
			if level >= e.opts.IncludeThreshold {
				rel.State = StateIncluded
				rel.UsedInGraph = true
			} else {
				rel.State = StateExcluded
			}

			rels[i] = rel
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.SourceTable != b.SourceTable {
			return a.SourceTable < b.SourceTable
		}
		if a.SourceColumn != b.SourceColumn {
			return a.SourceColumn < b.SourceColumn
		}
		if a.TargetTable != b.TargetTable {
			return a.TargetTable < b.TargetTable
		}
		return a.TargetColumn < b.TargetColumn
	})

	included := 0
	for _, rel := range rels {
		if rel.UsedInGraph {
			included++
		}
	}
	e.report("验证完成：%d 条关系，%d 条入图", len(rels), included)

	e.report("检测参照表...")
	lookups := NewLookupDetector(e.adapter).Detect(meta)
	descriptions := make(map[string]string, len(lookups))
	for _, lt := range lookups {
		descriptions[lt.Name] = lt.Description()
	}

	e.report("构建关系图...")
	g := BuildGraph(meta.Tables, rels, unmatched, descriptions)

	return &Result{
		Tables:        meta.Tables,
		Skipped:       meta.Skipped,
		Relationships: rels,
		Unmatched:     unmatched,
		Lookups:       lookups,
		Graph:         g,
	}, nil
}
