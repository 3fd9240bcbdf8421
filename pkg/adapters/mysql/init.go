package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/dialect"
)

func init() {
	dialect.Register(Dialect)
	adapter.Register("mysql", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
