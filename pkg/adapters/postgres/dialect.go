package postgres

import (
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/dialect"
)

// postgresReservedWords contains common PostgreSQL reserved words.
var postgresReservedWords = []string{
	"user", "order", "group", "table", "select", "from", "where", "index",
	"all", "and", "any", "array", "as", "asc", "between", "both", "case",
	"cast", "check", "column", "constraint", "create", "cross", "default",
	"desc", "distinct", "do", "else", "end", "false", "for", "foreign",
	"full", "grant", "having", "in", "inner", "into", "is", "join", "left",
	"like", "limit", "not", "null", "offset", "on", "or", "primary",
	"references", "right", "then", "to", "true", "union", "unique", "using",
	"when", "window", "with",
}

// Dialect is the PostgreSQL dialect.
var Dialect = dialect.NewDialect("postgres").
	DefaultSchema("public").
	PlaceholderStyle(dialect.PlaceholderDollar).
	Type(core.TypeDecimal, "NUMERIC(18, 4)").
	Type(core.TypeString, "TEXT").
	WithReservedWords(postgresReservedWords...).
	Build()
