// factory.go maps backend names from config to constructors. Backends register
// themselves from init() in their own package, so importing a backend package
// is what makes it available.
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oneira/oneira/internal/config"
)

// FactoryFunc constructs a storage backend from the application config.
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register makes a backend constructor available under name. Called from
// init(), before main runs, so no locking is needed.
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage builds the backend selected by storage.default_backend.
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)",
			cfg.Storage.DefaultBackend, strings.Join(Backends(), ", "))
	}
	return factory(cfg)
}
