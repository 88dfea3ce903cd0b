package chunkquery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedDialect is returned by DialectFor for unknown drivers.
var ErrUnsupportedDialect = errors.New("chunkquery: unsupported dialect")

// Dialect renders a Spec as one SQL statement whose result set is a single
// text column named fragment, ordered as the document must be rebuilt.
type Dialect interface {
	Name() string
	Build(spec Spec) (string, error)
}

// DialectFor returns the dialect for a database driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, driver)
	}
}

// grammar holds the engine specific pieces of the statement.
type grammar struct {
	name   string
	quote  func(ident string) string
	object string // builds one JSON object from key/value pairs
	// array aggregates the object expression into a JSON array text.
	array func(object, orderBy string) string
	// text casts the final JSON expression to a character type.
	text        func(expr string) string
	length      string
	substr      string
	hint        string
	limitSubsel string
}

var (
	// SQLite uses the JSON1 functions built into mattn/go-sqlite3.
	SQLite Dialect = &grammar{
		name:   "sqlite",
		quote:  doubleQuote,
		object: "json_object",
		array: func(object, _ string) string {
			return "json(json_group_array(" + object + "))"
		},
		text:   func(expr string) string { return expr },
		length: "length",
		substr: "substr",
	}

	// Postgres orders inside json_agg and casts the json result to text.
	Postgres Dialect = &grammar{
		name:   "postgres",
		quote:  doubleQuote,
		object: "json_build_object",
		array: func(object, orderBy string) string {
			if orderBy != "" {
				object += " ORDER BY " + orderBy
			}
			return "COALESCE(json_agg(" + object + "), '[]'::json)"
		},
		text:   func(expr string) string { return "(" + expr + ")::text" },
		length: "char_length",
		substr: "substr",
	}

	// MySQL ignores ORDER BY in a derived table unless it carries a LIMIT,
	// and caps recursive CTEs at 1000 iterations by default.
	MySQL Dialect = &grammar{
		name:   "mysql",
		quote:  func(ident string) string { return "`" + ident + "`" },
		object: "JSON_OBJECT",
		array: func(object, _ string) string {
			return "COALESCE(JSON_ARRAYAGG(" + object + "), JSON_ARRAY())"
		},
		text:        func(expr string) string { return "CAST(" + expr + " AS CHAR)" },
		length:      "CHAR_LENGTH",
		substr:      "SUBSTRING",
		hint:        "/*+ SET_VAR(cte_max_recursion_depth = 1000000) */ ",
		limitSubsel: " LIMIT 18446744073709551615",
	}
)

func doubleQuote(ident string) string {
	return `"` + ident + `"`
}

func (g *grammar) Name() string {
	return g.name
}

// Build renders spec. With FragmentLength L > 0 the document is split by a
// recursive CTE into rows substr(body, n*L+1, L) for n = 0..ceil(len/L)-1.
func (g *grammar) Build(spec Spec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	body, from := g.document(spec)
	if !spec.Chunked() {
		return "SELECT " + g.hint + body + " AS fragment FROM " + from, nil
	}

	l := spec.FragmentLength
	var b strings.Builder
	fmt.Fprintf(&b, "WITH RECURSIVE doc(body) AS (SELECT %s FROM %s), ", body, from)
	fmt.Fprintf(&b, "pieces(n) AS (SELECT 0 UNION ALL SELECT pieces.n + 1 FROM pieces, doc WHERE (pieces.n + 1) * %d < %s(doc.body)) ", l, g.length)
	fmt.Fprintf(&b, "SELECT %s%s(doc.body, pieces.n * %d + 1, %d) AS fragment FROM pieces, doc ORDER BY pieces.n", g.hint, g.substr, l, l)
	return b.String(), nil
}

// document returns the JSON text expression and its FROM clause.
func (g *grammar) document(spec Spec) (expr, from string) {
	pairs := make([]string, 0, len(spec.Columns))
	cols := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		pairs = append(pairs, fmt.Sprintf("'%s', t.%s", c, g.quote(c)))
		cols = append(cols, g.quote(c))
	}

	orderBy := ""
	if spec.OrderBy != "" {
		orderBy = "t." + g.quote(spec.OrderBy)
	}

	expr = g.array(g.object+"("+strings.Join(pairs, ", ")+")", orderBy)
	if spec.Root != "" {
		expr = fmt.Sprintf("%s('%s', %s)", g.object, spec.Root, expr)
	}
	expr = g.text(expr)

	from = "(SELECT " + strings.Join(cols, ", ") + " FROM " + g.quote(spec.Table)
	if spec.OrderBy != "" {
		from += " ORDER BY " + g.quote(spec.OrderBy) + g.limitSubsel
	}
	from += ") AS t"
	return expr, from
}
