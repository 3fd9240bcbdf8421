package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customersSchema() *TableSchema {
	return &TableSchema{
		Name: "customers",
		Key:  []string{"customer_id"},
		Columns: []Column{
			{Name: "customer_id", Type: TypeInteger},
			{Name: "full_name", Type: TypeString},
			{Name: "is_active", Type: TypeBoolean},
		},
	}
}

func TestTableSchema_Conform(t *testing.T) {
	s := customersSchema()

	t.Run("coerces values and fills absent columns", func(t *testing.T) {
		got, err := s.Conform(Record{"customer_id": 1, "full_name": "A B"})
		require.NoError(t, err)
		assert.Equal(t, Record{"customer_id": int64(1), "full_name": "A B", "is_active": nil}, got)
	})

	t.Run("rejects unknown column", func(t *testing.T) {
		_, err := s.Conform(Record{"customer_id": int64(1), "nickname": "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nickname")
	})

	t.Run("rejects null key", func(t *testing.T) {
		_, err := s.Conform(Record{"full_name": "A B"})
		var mfe *MalformedFieldError
		require.True(t, errors.As(err, &mfe))
		assert.Equal(t, "customer_id", mfe.Field)
	})

	t.Run("rejects type mismatch", func(t *testing.T) {
		_, err := s.Conform(Record{"customer_id": int64(1), "is_active": "maybe"})
		var mfe *MalformedFieldError
		require.True(t, errors.As(err, &mfe))
		assert.Equal(t, "is_active", mfe.Field)
	})
}

func TestTableSchema_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*TableSchema)
		errSubstr string
	}{
		{name: "valid", mutate: func(*TableSchema) {}},
		{name: "missing key", mutate: func(s *TableSchema) { s.Key = nil }, errSubstr: "business key is required"},
		{name: "undeclared key", mutate: func(s *TableSchema) { s.Key = []string{"id"} }, errSubstr: "not declared"},
		{name: "bad type", mutate: func(s *TableSchema) { s.Columns[1].Type = "text" }, errSubstr: "unknown type"},
		{name: "duplicate column", mutate: func(s *TableSchema) {
			s.Columns = append(s.Columns, Column{Name: "full_name", Type: TypeString})
		}, errSubstr: "duplicate column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := customersSchema()
			tt.mutate(s)
			err := s.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestTableSchema_NonKeyColumns(t *testing.T) {
	assert.Equal(t, []string{"full_name", "is_active"}, customersSchema().NonKeyColumns())
}
