package normalize

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Func computes a target value from its source values.
type Func func(in []any) (any, error)

// Env carries the collaborators a transform may depend on.
type Env struct {
	Now func() time.Time
}

// Factory builds a Func for one mapping, validating its params and arity.
type Factory func(m Mapping, env *Env) (Func, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterTransform adds a transform factory to the registry.
func RegisterTransform(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// GetTransform retrieves a transform factory by name.
func GetTransform(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// ListTransforms returns all registered transform names (sorted).
func ListTransforms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownTransformError is returned when a mapping names an unregistered transform.
type UnknownTransformError struct {
	Name      string
	Target    string
	Available []string
}

func (e *UnknownTransformError) Error() string {
	return fmt.Sprintf("mapping %q: unknown transform %q\nAvailable transforms: %v", e.Target, e.Name, e.Available)
}

// decodeParams decodes mapping params into out, rejecting unknown keys.
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func requireInputs(m Mapping, n int) error {
	if got := len(m.Inputs()); got != n {
		return fmt.Errorf("expects %d source field(s), got %d", n, got)
	}
	return nil
}
