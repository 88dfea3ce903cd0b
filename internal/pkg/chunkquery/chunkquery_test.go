package chunkquery

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/reassembly"
)

type item struct {
	ID   uint   `gorm:"primarykey"`
	Name string `gorm:"size:64"`
}

func (item) TableName() string { return "items" }

func itemSpec(length int) Spec {
	return Spec{Table: "items", Columns: []string{"id", "name"}, OrderBy: "id", Root: "items", FragmentLength: length}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"valid chunked", itemSpec(10), false},
		{"valid single row", itemSpec(0), false},
		{"no root no order", Spec{Table: "items", Columns: []string{"id"}}, false},
		{"bad table", Spec{Table: "items; drop", Columns: []string{"id"}}, true},
		{"no columns", Spec{Table: "items"}, true},
		{"bad column", Spec{Table: "items", Columns: []string{"id", "na me"}}, true},
		{"bad order", Spec{Table: "items", Columns: []string{"id"}, OrderBy: "id desc"}, true},
		{"bad root", Spec{Table: "items", Columns: []string{"id"}, Root: "it'ems"}, true},
		{"negative length", Spec{Table: "items", Columns: []string{"id"}, FragmentLength: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpec)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]string{
		"postgres": "postgres", "pgx": "postgres",
		"mysql": "mysql", "MariaDB": "mysql",
		"sqlite": "sqlite", "sqlite3": "sqlite",
	} {
		d, err := DialectFor(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, want, d.Name())
	}

	_, err := DialectFor("mssql")
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}

func TestBuild(t *testing.T) {
	tests := []struct {
		dialect Dialect
		spec    Spec
		want    []string
	}{
		{
			dialect: SQLite,
			spec:    itemSpec(0),
			want: []string{
				`SELECT json_object('items', json(json_group_array(json_object('id', t."id", 'name', t."name")))) AS fragment`,
				`FROM (SELECT "id", "name" FROM "items" ORDER BY "id") AS t`,
			},
		},
		{
			dialect: Postgres,
			spec:    itemSpec(2033),
			want: []string{
				`WITH RECURSIVE doc(body) AS (SELECT (json_build_object('items', COALESCE(json_agg(json_build_object('id', t."id", 'name', t."name") ORDER BY t."id"), '[]'::json)))::text`,
				`WHERE (pieces.n + 1) * 2033 < char_length(doc.body)`,
				`SELECT substr(doc.body, pieces.n * 2033 + 1, 2033) AS fragment FROM pieces, doc ORDER BY pieces.n`,
			},
		},
		{
			dialect: MySQL,
			spec:    itemSpec(100),
			want: []string{
				"CAST(JSON_OBJECT('items', COALESCE(JSON_ARRAYAGG(JSON_OBJECT('id', t.`id`, 'name', t.`name`)), JSON_ARRAY())) AS CHAR)",
				"ORDER BY `id` LIMIT 18446744073709551615) AS t",
				"CHAR_LENGTH(doc.body)",
				"SELECT /*+ SET_VAR(cte_max_recursion_depth = 1000000) */ SUBSTRING(doc.body, pieces.n * 100 + 1, 100)",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			sql, err := tt.dialect.Build(tt.spec)
			require.NoError(t, err)
			for _, fragment := range tt.want {
				assert.Contains(t, sql, fragment)
			}
		})
	}

	_, err := SQLite.Build(Spec{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func seededSource(t *testing.T, n int) *Source {
	t.Helper()
	db, err := database.OpenMemory(logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.AutoMigrate(&item{}))
	items := make([]item, n)
	for i := range items {
		items[i].Name = fmt.Sprintf("item-%04d", i+1)
	}
	if n > 0 {
		require.NoError(t, database.BatchInsert(context.Background(), db.DB, &items, 100))
	}

	src, err := SourceFor(db)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", src.Dialect().Name())
	return src
}

func readAll(t *testing.T, src *Source, spec Spec) []string {
	t.Helper()
	rows, err := src.Open(context.Background(), spec)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		out = append(out, rows.Text())
	}
	require.NoError(t, rows.Err())
	return out
}

func TestSource_SQLite(t *testing.T) {
	src := seededSource(t, 120)

	single := readAll(t, src, itemSpec(0))
	require.Len(t, single, 1)
	doc, err := reassembly.TryParseJSON(single[0])
	require.NoError(t, err)
	assert.Equal(t, 120, doc.Count("items"))
	assert.Equal(t, "item-0001", doc.Get("items.0.name").String())
	assert.Equal(t, "item-0120", doc.Get("items.119.name").String())

	const length = 97
	chunks := readAll(t, src, itemSpec(length))
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, single[0], strings.Join(chunks, ""))
	for _, c := range chunks[:len(chunks)-1] {
		assert.Equal(t, length, utf8.RuneCountInString(c))
	}
	assert.LessOrEqual(t, utf8.RuneCountInString(chunks[len(chunks)-1]), length)
	assert.Equal(t, reassembly.Split(single[0], length), chunks)
}

func TestSource_SQLite_Collect(t *testing.T) {
	src := seededSource(t, 60)
	ctx := context.Background()

	rows, err := src.Open(ctx, itemSpec(50))
	require.NoError(t, err)
	res, err := reassembly.Collect(ctx, rows, nil)
	require.NoError(t, rows.Close())
	require.NoError(t, err)
	assert.True(t, res.IsValidJSON)
	assert.True(t, res.Chunked())

	rows, err = src.Open(ctx, itemSpec(50))
	require.NoError(t, err)
	res, err = reassembly.Collect(ctx, rows, reassembly.DropTerminal)
	require.NoError(t, rows.Close())
	require.NoError(t, err)
	assert.False(t, res.IsValidJSON)
}

func TestSource_SQLite_EmptyTable(t *testing.T) {
	src := seededSource(t, 0)

	assert.Equal(t, []string{`{"items":[]}`}, readAll(t, src, itemSpec(0)))
	assert.Equal(t, []string{`{"ite`, `ms":[`, `]}`}, readAll(t, src, itemSpec(5)))
}

func TestSource_OpenErrors(t *testing.T) {
	src := seededSource(t, 1)

	_, err := src.Open(context.Background(), Spec{Table: "items"})
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = src.Open(context.Background(), Spec{Table: "missing", Columns: []string{"id"}})
	assert.Error(t, err)
}
