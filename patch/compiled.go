package patch

import (
	"iter"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// Compiled is a built, immutable overlay against one struct type,
// linked into the registry it was built against (spec.md §4.C
// "Compiled patch"). It implements kreflect.LinkedPatch so the
// registry can track and tear it down without importing this package.
type Compiled struct {
	structName intern.Name
	registry   *kreflect.Registry
	nodes      []Node
	blob       []byte
}

// StructName satisfies kreflect.LinkedPatch.
func (c *Compiled) StructName() intern.Name {
	return c.structName
}

// NodeCount returns the number of compiled nodes.
func (c *Compiled) NodeCount() int {
	return len(c.nodes)
}

// Apply writes every node's bytes into dst at the node's offset, per
// spec.md §4.C "Apply": memcpy(target+offset, bytes, size) per node.
// dst must be at least as large as the struct this patch was compiled
// against.
func (c *Compiled) Apply(dst []byte) {
	for _, n := range c.nodes {
		copy(dst[n.Offset:n.Offset+n.Size], n.Bytes)
	}
}

// Iterate yields every compiled node in ascending offset order
// (spec.md §4.C "Iterate").
func (c *Compiled) Iterate() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, n := range c.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

// Destroy unlinks this patch from its owning registry. Safe to call
// once; the registry also calls this for every linked patch from its
// own Destroy.
func (c *Compiled) Destroy(ctx context.Context) {
	if c.registry != nil {
		c.registry.UnlinkPatch(c)
	}
	c.nodes = nil
	c.blob = nil
}
