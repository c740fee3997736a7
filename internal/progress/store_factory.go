package progress

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// LocalStoreFactory builds a LocalStore for a registered DSN scheme.
type LocalStoreFactory func(dsn string) (LocalStore, error)

var localStoreRegistry = struct {
	mu        sync.RWMutex
	factories map[string]LocalStoreFactory
}{
	factories: map[string]LocalStoreFactory{},
}

// RegisterLocalStoreFactory installs a custom backend for a DSN scheme,
// overriding the built-in resolution for that scheme.
func RegisterLocalStoreFactory(scheme string, factory LocalStoreFactory) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || factory == nil {
		return
	}
	localStoreRegistry.mu.Lock()
	defer localStoreRegistry.mu.Unlock()
	localStoreRegistry.factories[scheme] = factory
}

func lookupLocalStoreFactory(scheme string) (LocalStoreFactory, bool) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	localStoreRegistry.mu.RLock()
	defer localStoreRegistry.mu.RUnlock()
	factory, ok := localStoreRegistry.factories[scheme]
	return factory, ok
}

// BuildLocalStoreFromDSN resolves a local store backend from a DSN. A bare
// path or file:// selects the per-subject JSON file store, sqlite:// the
// database-file store and memory:// the in-memory store.
func BuildLocalStoreFromDSN(dsn string) (LocalStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty local store dsn", ErrStorageUnavailable)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupLocalStoreFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileLocalStore(path)
	case "sqlite", "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteLocalStore(path)
	case "memory", "mem", "inmem":
		return NewMemoryLocalStore(), nil
	default:
		return nil, fmt.Errorf("unsupported local store scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", fmt.Errorf("%w: empty dsn", ErrStorageUnavailable)
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", fmt.Errorf("%w: empty dsn", ErrStorageUnavailable)
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", fmt.Errorf("%w: dsn carries no path: %s", ErrStorageUnavailable, raw)
	}
	return path, nil
}
