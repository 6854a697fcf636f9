// Package memplane implements the per-run keyed store nodes communicate
// through. Reads by a node see the snapshot taken when the node was
// scheduled; writes are buffered by the executor and applied atomically
// at merge time. A failed node applies no writes.
package memplane

import (
	"fmt"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/schema"
)

// Plane is a run-scoped keyed store. It is owned by a single scheduler
// and never shared across runs, so no locking is needed.
type Plane struct {
	values map[string]any
}

// New creates an empty plane.
func New() *Plane {
	return &Plane{values: make(map[string]any)}
}

// Restore rebuilds a plane from persisted snapshot contents.
func Restore(values map[string]any) *Plane {
	p := New()
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// Write sets a key unconditionally. Feedback revisits of a producer
// node overwrite prior values; last write wins.
func (p *Plane) Write(key string, value any) {
	p.values[key] = value
}

// Read returns the value for a key and whether it is present.
func (p *Plane) Read(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Contents returns a copy of every key currently set.
func (p *Plane) Contents() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Snapshot copies the plane into the immutable view a node execution
// reads from. Later merges do not leak into an existing view.
func (p *Plane) Snapshot() View {
	return View(p.Contents())
}

// Merge applies a node's buffered outputs atomically. It fails with a
// missing-required-output failure when a non-nullable declared output
// key is absent or nil, and also with a missing-required-output failure
// when a typed output does not match its declared type; an unparseable
// output_types declaration is a validation failure. On error nothing is
// written.
//
// For nullable keys, an explicit nil clears the key (a feedback
// producer signalling "no more feedback"), while an absent key leaves
// any prior value in place.
func (p *Plane) Merge(node *domain.Node, outputs map[string]any) error {
	for _, key := range node.OutputKeys {
		v, ok := outputs[key]
		if (!ok || v == nil) && node.OutputRequired(key) {
			return domain.NewFailure(domain.FailMissingOutput, node.ID,
				"declared output %q absent", key)
		}
	}

	if len(node.OutputTypes) > 0 {
		decls, err := schema.Parse(node.OutputTypes)
		if err != nil {
			return domain.NewFailure(domain.FailValidation, node.ID, "bad output_types: %v", err)
		}
		if err := decls.Check(outputs); err != nil {
			return domain.NewFailure(domain.FailMissingOutput, node.ID, "%v", err)
		}
	}

	for _, key := range node.OutputKeys {
		v, ok := outputs[key]
		if !ok {
			continue
		}
		if v == nil {
			delete(p.values, key)
			continue
		}
		p.values[key] = v
	}
	return nil
}

// View is the frozen input snapshot handed to a node executor.
type View map[string]any

// Get returns a value from the view.
func (v View) Get(key string) (any, bool) {
	val, ok := v[key]
	return val, ok
}

// Select narrows the view to the given keys. Missing keys are omitted.
func (v View) Select(keys []string) View {
	out := make(View, len(keys))
	for _, k := range keys {
		if val, ok := v[k]; ok {
			out[k] = val
		}
	}
	return out
}

// Require verifies that every listed key is present, returning the
// missing ones.
func (v View) Require(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if val, ok := v[k]; !ok || val == nil {
			missing = append(missing, k)
		}
	}
	return missing
}

// String renders a value under a key for prompt serialization.
func (v View) String(key string) string {
	val, ok := v[key]
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}
