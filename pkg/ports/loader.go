package ports

import "github.com/systaxiecuador/hive/pkg/domain"

// GraphLoader loads graph descriptions from a persisted form. Load
// must return a structurally valid graph; validation failures are
// fatal at load time.
type GraphLoader interface {
	Load(path string) (*domain.Graph, error)
}
