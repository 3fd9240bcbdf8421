package core

import (
	"context"
	"fmt"
	"iter"
	"slices"
)

// Column describes one column of a target table.
type Column struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	Required bool      `yaml:"required,omitempty"`
}

// TableSchema describes a target table: its columns and business key.
type TableSchema struct {
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
	Key     []string `yaml:"key"`
}

// Column looks up a column by name.
func (s *TableSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// IsKey reports whether name is part of the business key.
func (s *TableSchema) IsKey(name string) bool {
	return slices.Contains(s.Key, name)
}

// NonKeyColumns returns every column that is not part of the business key.
func (s *TableSchema) NonKeyColumns() []string {
	var names []string
	for _, c := range s.Columns {
		if !s.IsKey(c.Name) {
			names = append(names, c.Name)
		}
	}
	return names
}

// KeyOf extracts the business key of r. A missing or null key field is a
// MalformedFieldError.
func (s *TableSchema) KeyOf(r Record) (Key, error) {
	return KeyOf(r, s.Key)
}

// KeyOf extracts the values of fields from r as a Key.
func KeyOf(r Record, fields []string) (Key, error) {
	key := make(Key, len(fields))
	for i, f := range fields {
		v, ok := r[f]
		if !ok || v == nil {
			return nil, &MalformedFieldError{Field: f, Value: v, Want: "non-null key"}
		}
		key[i] = Canonical(v)
	}
	return key, nil
}

// Conform checks r against the schema and returns a copy whose values are
// coerced to the column types. Absent columns become nil.
func (s *TableSchema) Conform(r Record) (Record, error) {
	for name := range r {
		if _, ok := s.Column(name); !ok {
			return nil, fmt.Errorf("table %s has no column %q", s.Name, name)
		}
	}
	out := make(Record, len(s.Columns))
	for _, c := range s.Columns {
		v, err := Coerce(r[c.Name], c.Type)
		if err != nil {
			return nil, &MalformedFieldError{Field: c.Name, Value: r[c.Name], Want: string(c.Type), Err: err}
		}
		if v == nil && (c.Required || s.IsKey(c.Name)) {
			return nil, &MalformedFieldError{Field: c.Name, Value: nil, Want: "non-null " + string(c.Type)}
		}
		out[c.Name] = v
	}
	return out, nil
}

// Validate checks the schema itself for consistency.
func (s *TableSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if len(s.Key) == 0 {
		return fmt.Errorf("table %s: business key is required", s.Name)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %q", s.Name, c.Name)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return fmt.Errorf("table %s: column %q has unknown type %q", s.Name, c.Name, c.Type)
		}
	}
	for _, k := range s.Key {
		if !seen[k] {
			return fmt.Errorf("table %s: key column %q is not declared", s.Name, k)
		}
	}
	return nil
}

// Table is a target table addressable by business key.
//
// UpsertBatch must be atomic: either every record is applied or none is.
// For a key already present only the mutable columns are overwritten; an
// absent key inserts the full record. UpsertBatch never deletes rows.
type Table interface {
	Schema() *TableSchema
	Lookup(ctx context.Context, key Key) (Record, bool, error)
	UpsertBatch(ctx context.Context, recs []Record, mutable []string) (MergeResult, error)
	// Scan yields every row ordered by business key.
	Scan(ctx context.Context) iter.Seq2[Record, error]
}

// Pruner is a Table whose rows can be removed by key. The aggregator uses
// it to drop publish groups that vanished from the curated data; curated
// tables are never pruned.
//
// DeleteKeys must be atomic and returns the number of rows removed. Keys
// with no row are ignored.
type Pruner interface {
	Table
	DeleteKeys(ctx context.Context, keys []Key) (int, error)
}

// TableResolver hands out table handles by name.
type TableResolver interface {
	Table(name string) (Table, error)
}

// RecordSource produces the raw records of one input batch.
type RecordSource interface {
	Name() string
	Records(ctx context.Context) iter.Seq2[RawRecord, error]
}

// Collect drains a Scan sequence into a slice.
func Collect(seq iter.Seq2[Record, error]) ([]Record, error) {
	var out []Record
	for r, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CollectRaw drains a RecordSource into memory.
func CollectRaw(ctx context.Context, src RecordSource) ([]RawRecord, error) {
	var out []RawRecord
	for r, err := range src.Records(ctx) {
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		out = append(out, r)
	}
	return out, nil
}
