// Package locator implements spec.md §4.B, the "Field Locator": resolving
// a dotted field path against a registered struct down to an absolute
// byte offset and padded size. Its result feeds the patch builder
// (absolute offsets for chunk insertion) and serialisation diagnostics.
package locator

import (
	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
	"github.com/gostdlib/base/context"
)

// Result is what Locate returns on success: the resolved field, its
// absolute offset from the root struct instance, and its padded size.
type Result struct {
	Field          *kreflect.FieldDescr
	AbsoluteOffset uint32
	SizeWithPad    uint32
}

// Locate walks path against structName within registry, per spec.md
// §4.B. The head of path names a struct field reachable from structName;
// each subsequent element descends one level further. Traversal may only
// continue through Struct-archetype fields: ExternalPointer,
// StructPointer, DynamicArray and InlineArray forbid deeper traversal
// because the data either leaves the local layout or carries array
// semantics incompatible with static path resolution. Basic archetypes
// (primitives, strings, enum, patch) have no subfields and must be the
// path's final element.
func Locate(ctx context.Context, registry *kreflect.Registry, structName intern.Name, path []intern.Name) (Result, bool) {
	if len(path) == 0 {
		return Result{}, false
	}

	curStructName := structName
	var absOffset uint32

	for i, step := range path {
		s, ok := registry.QueryStruct(curStructName)
		if !ok {
			return Result{}, false
		}

		idx, f := findField(s, step)
		if f == nil {
			return Result{}, false
		}

		absOffset += f.Offset
		last := i == len(path)-1
		if last {
			return Result{
				Field:          f,
				AbsoluteOffset: absOffset,
				SizeWithPad:    s.SizeWithPadding(idx),
			}, true
		}

		if f.Archetype != kreflect.ArchetypeStruct {
			// ExternalPointer, StructPointer, DynamicArray, InlineArray and
			// every basic archetype stop traversal here.
			return Result{}, false
		}
		curStructName = f.StructName
	}

	return Result{}, false
}

// findField returns the index within s.Fields and the descriptor of the
// first field named name, or (-1, nil) if absent.
func findField(s *kreflect.StructDescr, name intern.Name) (int, *kreflect.FieldDescr) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, f
		}
	}
	return -1, nil
}
