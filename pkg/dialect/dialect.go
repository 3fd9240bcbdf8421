// Package dialect describes how SQL is spelled for each warehouse engine.
//
// A Dialect covers the small surface the warehouse layer generates SQL for:
// identifier quoting, parameter placeholders, the default schema and the
// column type each field type is stored as. Concrete dialects are registered
// by the pkg/adapters/* packages.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// PlaceholderStyle selects how query parameters are written.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? for every parameter.
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, ...
	PlaceholderDollar
	// PlaceholderAtP uses @p1, @p2, ...
	PlaceholderAtP
)

// IdentifierConfig holds quoting rules for identifiers.
type IdentifierConfig struct {
	Quote    string // opening quote, e.g. `"` or `[`
	QuoteEnd string // closing quote, e.g. `"` or `]`
	Escape   string // replacement for QuoteEnd inside a name
}

// Dialect is an immutable SQL dialect definition. Build one with NewDialect.
type Dialect struct {
	Name          string
	Identifiers   IdentifierConfig
	DefaultSchema string
	Placeholder   PlaceholderStyle
	// Schemaless dialects keep every table in the connected database;
	// schema qualifiers are dropped from generated SQL.
	Schemaless bool

	types         map[core.FieldType]string
	reservedWords map[string]struct{}
	createSchema  string
}

// FormatPlaceholder returns the placeholder for the given parameter index (1-based).
func (d *Dialect) FormatPlaceholder(index int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(index)
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(index)
	default:
		return "?"
	}
}

// Placeholders returns n comma separated placeholders starting at index start.
func (d *Dialect) Placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.FormatPlaceholder(start + i)
	}
	return strings.Join(parts, ", ")
}

// QuoteIdentifier quotes name using the dialect's quote characters.
func (d *Dialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, d.Identifiers.QuoteEnd, d.Identifiers.Escape)
	return d.Identifiers.Quote + escaped + d.Identifiers.QuoteEnd
}

// QualifiedName quotes a table reference. An empty schema falls back to the
// dialect default; schemaless dialects return the bare table.
func (d *Dialect) QualifiedName(schema, table string) string {
	if d.Schemaless {
		return d.QuoteIdentifier(table)
	}
	if schema == "" {
		schema = d.DefaultSchema
	}
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// IsReservedWord reports whether word needs quoting when used as an identifier.
func (d *Dialect) IsReservedWord(word string) bool {
	_, ok := d.reservedWords[strings.ToLower(word)]
	return ok
}

// CreateSchemaSQL returns an idempotent statement creating schema name, or
// "" for schemaless dialects.
func (d *Dialect) CreateSchemaSQL(name string) string {
	if d.Schemaless || d.createSchema == "" {
		return ""
	}
	return fmt.Sprintf(d.createSchema, d.QuoteIdentifier(name), strings.ReplaceAll(name, "'", "''"))
}

// TypeName returns the column type a field type is stored as.
func (d *Dialect) TypeName(t core.FieldType) (string, error) {
	name, ok := d.types[t]
	if !ok {
		return "", fmt.Errorf("dialect %s has no column type for %q", d.Name, t)
	}
	return name, nil
}

// Builder assembles a Dialect.
type Builder struct {
	d *Dialect
}

// NewDialect starts a dialect definition with ANSI defaults: double quoted
// identifiers, ? placeholders and portable column types.
func NewDialect(name string) *Builder {
	return &Builder{d: &Dialect{
		Name:        name,
		Identifiers: IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`},
		types: map[core.FieldType]string{
			core.TypeInteger:   "BIGINT",
			core.TypeDecimal:   "DECIMAL(18, 4)",
			core.TypeDate:      "DATE",
			core.TypeTimestamp: "TIMESTAMP",
			core.TypeString:    "VARCHAR",
			core.TypeBoolean:   "BOOLEAN",
		},
		reservedWords: make(map[string]struct{}),
		createSchema:  "CREATE SCHEMA IF NOT EXISTS %[1]s",
	}}
}

// Identifiers sets identifier quoting.
func (b *Builder) Identifiers(quote, quoteEnd, escape string) *Builder {
	b.d.Identifiers = IdentifierConfig{Quote: quote, QuoteEnd: quoteEnd, Escape: escape}
	return b
}

// DefaultSchema sets the schema used for unqualified tables.
func (b *Builder) DefaultSchema(schema string) *Builder {
	b.d.DefaultSchema = schema
	return b
}

// PlaceholderStyle sets the parameter placeholder style.
func (b *Builder) PlaceholderStyle(style PlaceholderStyle) *Builder {
	b.d.Placeholder = style
	return b
}

// Schemaless marks the dialect as keeping all tables in one namespace.
func (b *Builder) Schemaless() *Builder {
	b.d.Schemaless = true
	return b
}

// CreateSchema sets the statement template for creating a schema. %[1]s is
// the quoted name and %[2]s the name as a string literal body.
func (b *Builder) CreateSchema(template string) *Builder {
	b.d.createSchema = template
	return b
}

// Type overrides the column type for a field type.
func (b *Builder) Type(t core.FieldType, sqlType string) *Builder {
	b.d.types[t] = sqlType
	return b
}

// WithReservedWords adds words that must be quoted as identifiers.
func (b *Builder) WithReservedWords(words ...string) *Builder {
	for _, w := range words {
		b.d.reservedWords[strings.ToLower(w)] = struct{}{}
	}
	return b
}

// Build returns the finished dialect.
func (b *Builder) Build() *Dialect {
	return b.d
}
