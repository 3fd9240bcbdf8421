package pipeline

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/dag"
	"github.com/leapstack-labs/leapetl/internal/merge"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
name: shop
entities:
  - name: customers
    source: customers_raw
    key: [customer_id]
    columns:
      - { name: customer_id, type: integer }
      - { name: country_code, type: string }
    mappings:
      - { target: customer_id, transform: integer }
      - source: country
        target: country_code
        transform: lookup
        params: { values: { USA: US }, default: null }
`

func TestLoad_ExamplePipeline(t *testing.T) {
	p, err := Load("../../examples/pipeline.yaml")
	require.NoError(t, err)

	assert.Equal(t, "retail", p.Name)
	assert.True(t, p.LandRaw)
	assert.Equal(t, "analytics", p.Namespaces.Publish)
	assert.Equal(t, []string{"customers_raw", "orders_raw"}, p.Sources())
	require.Len(t, p.Aggregates, 2)

	customers, ok := p.Entity("customers")
	require.True(t, ok)
	assert.Equal(t, core.ErrorPolicySkip, customers.ErrorPolicy)
	assert.Equal(t, merge.PolicyUpdate, customers.Merge.Policy)

	summary, err := p.AggregateSchema(p.Aggregates[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id"}, summary.Key)
	assert.Contains(t, summary.ColumnNames(), "customer_segment")
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse(strings.NewReader(minimal))
	require.NoError(t, err)

	assert.Equal(t, core.ErrorPolicySkip, p.ErrorPolicy)
	assert.Equal(t, Namespaces{Raw: "raw", Curated: "curated", Publish: "publish"}, p.Namespaces)
	assert.False(t, p.AutoCreate)
	assert.Equal(t, core.ErrorPolicySkip, p.Entities[0].ErrorPolicy)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader(minimal + "\nschedule: hourly\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule")
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Pipeline)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Pipeline) {}},
		{
			name:    "missing name and bad policy",
			mutate:  func(p *Pipeline) { p.Name = ""; p.ErrorPolicy = "retry" },
			wantErr: []string{"pipeline name is required", `unknown error policy "retry"`},
		},
		{
			name: "mapping to undeclared column",
			mutate: func(p *Pipeline) {
				e := &p.Entities[0]
				e.Mappings = append(e.Mappings, e.Mappings[0])
				e.Mappings[len(e.Mappings)-1].Target = "nickname"
			},
			wantErr: []string{`mapping target "nickname" is not a column`},
		},
		{
			name:    "key without mapping",
			mutate:  func(p *Pipeline) { p.Entities[0].Mappings = p.Entities[0].Mappings[1:] },
			wantErr: []string{`column "customer_id" is required but no mapping produces it`},
		},
		{
			name:    "unknown transform",
			mutate:  func(p *Pipeline) { p.Entities[0].Mappings[0].Transform = "uppercase" },
			wantErr: []string{"uppercase"},
		},
		{
			name: "dedup and merge on unknown columns",
			mutate: func(p *Pipeline) {
				e := &p.Entities[0]
				e.Dedup.OrderBy = append(e.Dedup.OrderBy, e.Dedup.OrderBy...)
				e.Dedup.OrderBy[0].Field = "updated_at"
				e.Merge.Mutable = []string{"customer_id"}
			},
			wantErr: []string{`dedup order field "updated_at"`, "part of the business key"},
		},
		{
			name:    "aggregate over unknown entity",
			mutate:  func(p *Pipeline) { p.Aggregates[1].Source = "returns" },
			wantErr: []string{`source "returns" is not an entity`},
		},
		{
			name:    "aggregate target clashes with entity",
			mutate:  func(p *Pipeline) { p.Aggregates[1].Target = "orders" },
			wantErr: []string{`table "orders" is defined by both`},
		},
		{
			name:    "entity reads another entity",
			mutate:  func(p *Pipeline) { p.Entities[1].Source = "customers" },
			wantErr: []string{"entity customers: name collides with a raw source"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Load("../../examples/pipeline.yaml")
			require.NoError(t, err)
			tt.mutate(p)

			err = p.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestPipeline_Graph(t *testing.T) {
	p, err := Load("../../examples/pipeline.yaml")
	require.NoError(t, err)

	g, err := p.Graph()
	require.NoError(t, err)
	assert.Equal(t, 6, g.NodeCount())
	assert.Equal(t, 5, g.EdgeCount())
	assert.Equal(t, []string{"customers_raw", "orders_raw"}, g.NodesOf(dag.KindSource))
	assert.ElementsMatch(t, []string{"customers", "orders"}, g.Parents("customer_summary"))

	levels, err := g.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"customer_summary", "daily_sales"}, levels[2])

	assert.Equal(t, []string{"customer_summary", "customers"}, g.Downstream("customers_raw"))
}
