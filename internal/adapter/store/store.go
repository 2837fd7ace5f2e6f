package store

import (
	"fmt"
	"io"

	"hydra/internal/domain"
	"hydra/internal/infra/config"
)

// New opens the SystemStore selected by cfg. The returned closer releases
// backend resources and is never nil.
func New(cfg config.StoreConfig) (domain.SystemStore, io.Closer, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nopCloser{}, nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
