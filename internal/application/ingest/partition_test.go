package ingest

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/testutil"
)

func yearRows(years ...int) map[int][]registry.Row {
	out := map[int][]registry.Row{}
	for _, y := range years {
		out[y] = append(out[y], registry.Row{})
	}
	return out
}

func TestSelectYears(t *testing.T) {
	byYear := yearRows(2015, 2016, 2017, 2018, 2019, 2020)

	cases := []struct {
		name string
		opts PartitionOptions
		want []int
	}{
		{"all", PartitionOptions{}, []int{2015, 2016, 2017, 2018, 2019, 2020}},
		{"min", PartitionOptions{MinYear: 2018}, []int{2018, 2019, 2020}},
		{"max", PartitionOptions{MaxYear: 2016}, []int{2015, 2016}},
		{"start", PartitionOptions{StartYear: 2019}, []int{2019, 2020}},
		{"min and max", PartitionOptions{MinYear: 2016, MaxYear: 2018}, []int{2016, 2017, 2018}},
		{"stride", PartitionOptions{Stride: 2}, []int{2015, 2017, 2019}},
		{"filter then stride", PartitionOptions{MinYear: 2016, Stride: 3}, []int{2016, 2019}},
		{"skip filters", PartitionOptions{MinYear: 2019, MaxYear: 2019, SkipYearFilter: true}, []int{2015, 2016, 2017, 2018, 2019, 2020}},
		{"nothing left", PartitionOptions{MinYear: 2030}, []int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, selectYears(byYear, tc.opts))
		})
	}
}

func TestTrimRows(t *testing.T) {
	rows := []registry.Row{
		{registry.ColActual: "да"},
		{registry.ColActual: "нет"},
		{registry.ColActual: "1"},
		{registry.ColActual: "true"},
	}
	assert.Len(t, trimRows(rows, PartitionOptions{}), 4)
	assert.Len(t, trimRows(rows, PartitionOptions{OnlyActive: true}), 3)
	assert.Len(t, trimRows(rows, PartitionOptions{OnlyActive: true, Limit: 2}), 2)
	assert.Len(t, trimRows(rows, PartitionOptions{Limit: 10}), 4)
}

func TestPartitioner_ByYear(t *testing.T) {
	store := testutil.NewMemStore()
	p := NewPartitioner(newTestEngine(t, store, false), nil)
	gcRuns := 0
	p.gc = func() { gcRuns++ }

	tbl := table([]string{registry.ColRegistrationNumber, "invention name", registry.ColRegistrationDate},
		[]string{"1", "A", "2018-01-01"},
		[]string{"2", "B", "2019-05-05"},
		[]string{"3", "C", "2019-06-06"},
		[]string{"4", "D", "2021-01-01"},
		[]string{"5", "E", ""},
	)
	res, mode, years, err := p.Run(context.Background(), inventionPass(t, tbl), PartitionOptions{ByYear: true, MinYear: 2019})
	require.NoError(t, err)

	assert.Equal(t, ModeByYear, mode)
	assert.Equal(t, []int{2019, 2021}, years)
	assert.Equal(t, 3, res.Stats.Created)
	assert.Equal(t, 1, gcRuns)
	assert.Nil(t, store.Object(registry.CategoryInvention, "1"))
	// the undated row falls outside the year filter
	assert.Nil(t, store.Object(registry.CategoryInvention, "5"))
	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Equal(t, 4, res.Stats.RecordsSeen)
	assert.Equal(t, phaseDone, p.phase)
}

func TestPartitioner_ByYearKeepsUndatedRows(t *testing.T) {
	store := testutil.NewMemStore()
	p := NewPartitioner(newTestEngine(t, store, false), nil)
	p.gc = func() {}

	tbl := table([]string{registry.ColRegistrationNumber, "invention name", registry.ColRegistrationDate},
		[]string{"1001", "Device A", "2018-01-01"},
		[]string{"1002", "Device B", ""},
	)
	res, mode, years, err := p.Run(context.Background(), inventionPass(t, tbl), PartitionOptions{ByYear: true})
	require.NoError(t, err)

	assert.Equal(t, ModeByYear, mode)
	assert.Equal(t, []int{2018}, years)
	assert.Equal(t, Stats{RecordsSeen: 2, Created: 2}, res.Stats)
	assert.Equal(t, 2, store.ObjectCount())
}

func TestPartitioner_ByYearFirstDuplicateWins(t *testing.T) {
	tbl := table([]string{registry.ColRegistrationNumber, "invention name", registry.ColRegistrationDate},
		[]string{"1001", "Device A", "2018-01-01"},
		[]string{"1001", "Device A2", "2019-01-01"},
	)
	for _, opts := range []PartitionOptions{{}, {ByYear: true}} {
		store := testutil.NewMemStore()
		p := NewPartitioner(newTestEngine(t, store, false), nil)
		p.gc = func() {}

		res, _, _, err := p.Run(context.Background(), inventionPass(t, tbl), opts)
		require.NoError(t, err)
		assert.Equal(t, Stats{RecordsSeen: 2, Created: 1, Skipped: 1}, res.Stats, "by year: %v", opts.ByYear)
		obj := store.Object(registry.CategoryInvention, "1001")
		require.NotNil(t, obj)
		assert.Equal(t, "Device A", obj.Name)
	}
}

func TestPartitioner_FallsBackToWhole(t *testing.T) {
	store := testutil.NewMemStore()
	p := NewPartitioner(newTestEngine(t, store, false), nil)

	tbl := table([]string{registry.ColRegistrationNumber, "invention name"},
		[]string{"1", "A"}, []string{"2", "B"})
	res, mode, years, err := p.Run(context.Background(), inventionPass(t, tbl), PartitionOptions{ByYear: true})
	require.NoError(t, err)

	assert.Equal(t, ModeWhole, mode)
	assert.Nil(t, years)
	assert.Equal(t, 2, res.Stats.Created)
}

// storedState renders the registry content without surrogate IDs, keys or
// slugs so two stores filled in different orders compare equal.
func storedState(store *testutil.MemStore, regs []string) []string {
	persons := map[int64]string{}
	for _, p := range store.AllPersons() {
		persons[p.ID] = p.Parts().Full()
	}
	orgs := map[int64]string{}
	for _, o := range store.AllOrganizations() {
		orgs[o.ID] = o.Name
	}
	objects := map[int64]string{}
	var out []string
	for _, reg := range regs {
		o := store.Object(registry.CategoryInvention, reg)
		if o == nil {
			continue
		}
		objects[o.ID] = reg
		out = append(out, fmt.Sprintf("object %s %s %v %v %v", reg, o.Name, o.Actual, o.Value(registry.FieldRegistrationDate), o.Value(registry.FieldCreationYear)))
	}
	for _, e := range store.Edges(registry.RelationAuthor) {
		out = append(out, fmt.Sprintf("author %s %s", objects[e.ObjectID], persons[e.EntityID]))
	}
	for _, e := range store.Edges(registry.RelationPersonHolder) {
		out = append(out, fmt.Sprintf("person holder %s %s", objects[e.ObjectID], persons[e.EntityID]))
	}
	for _, e := range store.Edges(registry.RelationOrgHolder) {
		out = append(out, fmt.Sprintf("org holder %s %s", objects[e.ObjectID], orgs[e.EntityID]))
	}
	sort.Strings(out)
	return out
}

func TestPartitioner_YearModeMatchesWholeMode(t *testing.T) {
	people := []string{"Иванов Иван", "Петров Пётр Петрович", "Сидорова Анна", "Кузнецов Олег"}
	companies := []string{"Альфатех", "Бетасофт", "Гаммапром"}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 25).Draw(rt, "rows")
		var rows [][]string
		var regs []string
		known := map[string]bool{}
		for i := 0; i < n; i++ {
			// a small key space produces repeated registration numbers
			reg := fmt.Sprintf("%d", 100+rapid.IntRange(0, n).Draw(rt, "reg"))
			date := fmt.Sprintf("%d-03-01", rapid.IntRange(2015, 2019).Draw(rt, "year"))
			if i > 0 && rapid.IntRange(0, 4).Draw(rt, "undated") == 0 {
				date = ""
			}
			author := rapid.SampledFrom(people).Draw(rt, "author")
			holder := rapid.SampledFrom(append(append([]string{}, companies...), people...)).Draw(rt, "holder")
			active := rapid.SampledFrom([]string{"да", "нет"}).Draw(rt, "active")
			rows = append(rows, []string{reg, "Объект " + reg + " " + date, date, active, author, holder})
			if !known[reg] {
				known[reg] = true
				regs = append(regs, reg)
			}
		}
		tbl := table(inventionColumns, rows...)

		whole := testutil.NewMemStore()
		wholeRes, _, _, err := NewPartitioner(newTestEngine(rt, whole, false), nil).
			Run(context.Background(), Pass{Adapter: mustAdapter(rt), Table: tbl, Force: true}, PartitionOptions{})
		require.NoError(rt, err)

		yearly := testutil.NewMemStore()
		p := NewPartitioner(newTestEngine(rt, yearly, false), nil)
		p.gc = func() {}
		yearRes, mode, _, err := p.Run(context.Background(), Pass{Adapter: mustAdapter(rt), Table: tbl, Force: true}, PartitionOptions{ByYear: true, Stride: 1})
		require.NoError(rt, err)
		require.Equal(rt, ModeByYear, mode)

		require.Equal(rt, wholeRes.Stats, yearRes.Stats)
		require.Equal(rt, storedState(whole, regs), storedState(yearly, regs))
	})
}

func mustAdapter(t require.TestingT) *registry.Adapter {
	a, ok := registry.AdapterFor(registry.CategoryInvention)
	require.True(t, ok)
	return a
}
