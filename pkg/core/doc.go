// Package core defines the shared language of the leapetl system.
//
// This package contains:
//   - Record types (RawRecord, Record, Key) and canonical value handling
//   - Table contracts (TableSchema, Table, RecordSource)
//   - Error kinds surfaced by the transform layers
//   - Configuration and run-state types shared by adapters and the state store
//
// The Golden Rule: pkg/core imports only the standard library and the
// decimal type. All other packages depend on core, not the reverse.
package core
