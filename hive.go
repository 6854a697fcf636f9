package hive

import (
	"github.com/systaxiecuador/hive/pkg/adapters/graphdoc"
	"github.com/systaxiecuador/hive/pkg/domain"
)

// Version is the release version of the hive runtime.
const Version = "0.3.0"

// Load reads and validates a graph document from disk.
func Load(path string) (*domain.Graph, error) {
	return graphdoc.New().Load(path)
}

// Parse decodes and validates a graph document from bytes.
func Parse(data []byte) (*domain.Graph, error) {
	return graphdoc.Parse(data)
}
