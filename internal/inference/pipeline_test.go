package inference

import (
	"testing"

	"relation-mapper/internal/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newShopAdapter 典型电商库：orders.customer_id 数据完全命中 customers，
// orders.coupon_id 只是名字像、数据对不上
func newShopAdapter() *fakeAdapter {
	customers := makeTable("customers", []string{"id"}, "id", "name")
	orders := makeTable("orders", []string{"id"}, "id", "customer_id", "coupon_id", "amount")
	coupons := makeTable("coupons", []string{"id"}, "id", "code", "label")
	promotions := makeTable("promotions", []string{"id"}, "id", "title")

	customerKeys := seq("c", 10)
	customerIDs := make([]string, 100)
	for i := range customerIDs {
		customerIDs[i] = customerKeys[i%10]
	}

	return &fakeAdapter{
		meta: &adapter.SchemaMetadata{
			Tables: []adapter.Table{customers, orders, coupons, promotions},
		},
		samples: map[string][]string{
			"orders.customer_id": customerIDs,
			"orders.coupon_id":   seq("x", 100),
		},
		distincts: map[string][]string{
			"customers.id": seq("c", 10),
			"coupons.id":   seq("p", 50),
		},
		rowCounts: map[string]int64{
			"customers":  5000,
			"orders":     20000,
			"coupons":    50,
			"promotions": 2000,
		},
	}
}

func TestEngineRun(t *testing.T) {
	engine := NewEngine(newShopAdapter(), nil, Options{})

	result, err := engine.Run()
	require.NoError(t, err)
	require.Len(t, result.Relationships, 2)

	// 结果按候选身份排序：coupon_id 在 customer_id 前
	coupon := result.Relationships[0]
	customer := result.Relationships[1]

	assert.Equal(t, "coupon_id", coupon.SourceColumn)
	assert.Equal(t, "coupons", coupon.TargetTable)
	assert.Equal(t, RuleStemMatch, coupon.Rule)
	assert.Equal(t, 100, coupon.SampleSize)
	assert.Equal(t, 0.0, coupon.MatchedFraction)
	assert.Equal(t, VeryWeak, coupon.Confidence)
	assert.Equal(t, StateExcluded, coupon.State)
	assert.False(t, coupon.UsedInGraph)

	assert.Equal(t, "customer_id", customer.SourceColumn)
	assert.Equal(t, "customers", customer.TargetTable)
	assert.Equal(t, 100, customer.SampleSize)
	assert.Equal(t, 1.0, customer.MatchedFraction)
	assert.Equal(t, Strong, customer.Confidence)
	assert.Equal(t, "strong", customer.Level)
	assert.Equal(t, StateIncluded, customer.State)
	assert.True(t, customer.UsedInGraph)
	assert.Equal(t, CardinalityOneToMany, customer.Cardinality)
}

func TestEngineRunGraph(t *testing.T) {
	engine := NewEngine(newShopAdapter(), nil, Options{})

	result, err := engine.Run()
	require.NoError(t, err)
	g := result.Graph
	require.NotNil(t, g)

	// 每表一个节点，按表名排序
	require.Len(t, g.Nodes, 4)
	names := []string{g.Nodes[0].ID, g.Nodes[1].ID, g.Nodes[2].ID, g.Nodes[3].ID}
	assert.Equal(t, []string{"coupons", "customers", "orders", "promotions"}, names)

	nodes := make(map[string]int)
	for i, n := range g.Nodes {
		nodes[n.ID] = i
	}

	orders := g.Nodes[nodes["orders"]]
	assert.True(t, orders.HasRelationships)
	assert.Equal(t, "id", orders.Fields.PK)
	// 落选的候选来源列也留在字段清单里
	assert.Equal(t, []string{"customer_id", "coupon_id"}, orders.Fields.FKs)

	assert.True(t, g.Nodes[nodes["customers"]].HasRelationships)
	assert.False(t, g.Nodes[nodes["coupons"]].HasRelationships)

	// 孤立表保留节点，外键清单为空切片而非 nil
	promotions := g.Nodes[nodes["promotions"]]
	assert.False(t, promotions.HasRelationships)
	assert.NotNil(t, promotions.Fields.FKs)
	assert.Empty(t, promotions.Fields.FKs)

	// 只有入图关系产生边
	require.Len(t, g.Links, 1)
	assert.Equal(t, "orders", g.Links[0].Source)
	assert.Equal(t, "customers", g.Links[0].Target)
	assert.Equal(t, "customer_id", g.Links[0].SourceField)
	assert.Equal(t, "id", g.Links[0].TargetField)
}

func TestEngineRunDetectsLookupTables(t *testing.T) {
	engine := NewEngine(newShopAdapter(), nil, Options{})

	result, err := engine.Run()
	require.NoError(t, err)

	require.Len(t, result.Lookups, 1)
	lt := result.Lookups[0]
	assert.Equal(t, "coupons", lt.Name)
	assert.Equal(t, int64(50), lt.RowCount)

	// 码表描述写进图节点
	for _, n := range result.Graph.Nodes {
		if n.ID == "coupons" {
			assert.NotEmpty(t, n.Description)
			return
		}
	}
	t.Fatal("coupons node not found")
}

func TestEngineRunPKNameMatchVeryStrong(t *testing.T) {
	// customers.customer_id 为主键，orders.customer_id 同名且数据全命中：
	// 0.35*0.9 + 0.65*1.0 = 0.965 → very strong
	customers := makeTable("customers", []string{"customer_id"}, "customer_id", "name")
	orders := makeTable("orders", []string{"order_id"}, "order_id", "customer_id")

	ids := seq("c", 100)
	db := &fakeAdapter{
		meta: &adapter.SchemaMetadata{Tables: []adapter.Table{customers, orders}},
		samples: map[string][]string{
			"orders.customer_id": ids,
		},
		distincts: map[string][]string{
			"customers.customer_id": ids,
		},
		rowCounts: map[string]int64{"customers": 5000, "orders": 20000},
	}

	result, err := NewEngine(db, nil, Options{}).Run()
	require.NoError(t, err)

	require.Len(t, result.Relationships, 1)
	rel := result.Relationships[0]
	assert.Equal(t, RulePKNameMatch, rel.Rule)
	assert.Equal(t, VeryStrong, rel.Confidence)
	assert.True(t, rel.UsedInGraph)

	for _, n := range result.Graph.Nodes {
		assert.True(t, n.HasRelationships, n.ID)
	}
}

func TestEngineRunIdempotent(t *testing.T) {
	// 同一库跑两轮，关系集和图完全一致
	engine1 := NewEngine(newShopAdapter(), nil, Options{Workers: 8})
	engine2 := NewEngine(newShopAdapter(), nil, Options{Workers: 1})

	result1, err := engine1.Run()
	require.NoError(t, err)
	result2, err := engine2.Run()
	require.NoError(t, err)

	assert.Equal(t, result1.Relationships, result2.Relationships)
	assert.Equal(t, result1.Graph, result2.Graph)
}

func TestEngineRunSamplingFailureDegrades(t *testing.T) {
	db := newShopAdapter()
	db.failSample = map[string]error{
		"orders.customer_id": &adapter.SamplingError{Table: "orders", Column: "customer_id", Err: assert.AnError},
	}

	result, err := NewEngine(db, nil, Options{}).Run()
	require.NoError(t, err, "sampling failure must not abort the run")

	var rel Relationship
	for _, r := range result.Relationships {
		if r.SourceColumn == "customer_id" {
			rel = r
		}
	}
	require.NotEmpty(t, rel.SourceTable)

	assert.Equal(t, 0, rel.SampleSize)
	assert.NotEmpty(t, rel.SamplingNote)
	// 回落到结构分定档：0.75 → normal，仍然入图
	assert.Equal(t, Normal, rel.Confidence)
	assert.True(t, rel.UsedInGraph)
}

func TestEngineRunIncludeThreshold(t *testing.T) {
	// 抬高入图阈值到 very strong：strong 关系记录在案但不入图
	engine := NewEngine(newShopAdapter(), nil, Options{IncludeThreshold: VeryStrong})

	result, err := engine.Run()
	require.NoError(t, err)

	for _, rel := range result.Relationships {
		assert.False(t, rel.UsedInGraph, "%s.%s", rel.SourceTable, rel.SourceColumn)
		assert.Equal(t, StateExcluded, rel.State)
	}
	assert.Empty(t, result.Graph.Links)
}

func TestEngineRunSkippedTablesReported(t *testing.T) {
	db := newShopAdapter()
	db.meta.Skipped = []adapter.SkippedTable{{Name: "broken", Reason: "元数据不可读"}}

	result, err := NewEngine(db, nil, Options{}).Run()
	require.NoError(t, err)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "broken", result.Skipped[0].Name)
}
