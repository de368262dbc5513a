// Package migrate implements spec.md §4.D and §4.E: comparing a source
// and target registry to classify every enum and struct as
// NotNeeded/Needed/Removed (the Seed), and compiling a per-struct
// migrator program that rewrites live instances and stored patches
// from the old layout to the new one.
//
// Grounded on original_source's migration_seed_t /
// enum_migration_node_t / struct_migration_node_t
// (reflection_kan/kan/reflection/reflection.c), rendered without the
// C version's hash-bucket storage and intrusive node headers.
package migrate

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// Status classifies how much work migrating one type requires, per
// spec.md §4.D.
type Status uint8

const (
	// StatusNotNeeded means the type is byte-identical between the two
	// registries; instances can be reinterpreted without rewriting.
	StatusNotNeeded Status = iota
	// StatusNeeded means the type exists in both registries but some
	// field, value, size or alignment differs; a migrator program must
	// run.
	StatusNeeded
	// StatusRemoved means the type does not exist in the target
	// registry at all.
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusNotNeeded:
		return "NotNeeded"
	case StatusNeeded:
		return "Needed"
	case StatusRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// EnumNode is the computed migration seed for one source enum.
type EnumNode struct {
	Status Status
	// ValueRemap maps each source value's index (in source.Values
	// order) to the target value it should become. Populated even when
	// Status is NotNeeded, so callers have one uniform lookup path.
	ValueRemap []kreflect.EnumValueDescr

	sourceFlags, targetFlags bool
	sourceValues             []kreflect.EnumValueDescr
	targetFallback           int64
}

// indexByValue returns the index into ValueRemap/sourceValues whose
// source integer equals v.
func (n *EnumNode) indexByValue(v int64) (int, bool) {
	for i, sv := range n.sourceValues {
		if sv.Value == v {
			return i, true
		}
	}
	return 0, false
}

// fallback is target.values[0]'s integer, used when no source value
// matches (spec.md §4.E "log an error and fall back to
// target.values[0]").
func (n *EnumNode) fallback() int64 {
	return n.targetFallback
}

// StructField pairs a source field with the target field it maps to,
// or nil if no mappable target field exists (spec.md §3 "Field
// mappability rules").
type StructField struct {
	Source *kreflect.FieldDescr
	Target *kreflect.FieldDescr
}

// StructNode is the computed migration seed for one source struct.
type StructNode struct {
	Status    Status
	SourceDef *kreflect.StructDescr
	TargetDef *kreflect.StructDescr
	// FieldRemap is parallel to SourceDef.Fields.
	FieldRemap []StructField
}

// Seed is the pure comparison of two registries, per spec.md §4.D: a
// per-enum and per-struct classification plus remap tables. A Seed
// never mutates either registry.
type Seed struct {
	Source *kreflect.Registry
	Target *kreflect.Registry

	enums   map[intern.Name]*EnumNode
	structs map[intern.Name]*StructNode
	// inProgress guards the self-referential struct chain short-circuit
	// described in spec.md §4.D: a struct currently being built is
	// allowed to reference itself without infinite recursion.
	inProgress map[intern.Name]bool
}

// Build compares source against target and computes a Seed covering
// every enum and struct registered in source.
func Build(ctx context.Context, source, target *kreflect.Registry) *Seed {
	s := &Seed{
		Source:     source,
		Target:     target,
		enums:      make(map[intern.Name]*EnumNode),
		structs:    make(map[intern.Name]*StructNode),
		inProgress: make(map[intern.Name]bool),
	}

	for e := range source.EnumIter() {
		s.buildEnum(ctx, e)
	}
	for st := range source.StructIter() {
		s.requestStruct(ctx, st.Name)
	}
	return s
}

// QueryEnum returns the computed seed for the source enum named name.
func (s *Seed) QueryEnum(name intern.Name) (*EnumNode, bool) {
	n, ok := s.enums[name]
	return n, ok
}

// QueryStruct returns the computed seed for the source struct named
// name.
func (s *Seed) QueryStruct(name intern.Name) (*StructNode, bool) {
	n, ok := s.structs[name]
	return n, ok
}

func (s *Seed) buildEnum(ctx context.Context, e *kreflect.EnumDescr) *EnumNode {
	if n, ok := s.enums[e.Name]; ok {
		return n
	}

	target, ok := s.Target.QueryEnum(e.Name)
	if !ok {
		n := &EnumNode{Status: StatusRemoved}
		s.enums[e.Name] = n
		return n
	}

	n := &EnumNode{
		Status:       StatusNotNeeded,
		ValueRemap:   make([]kreflect.EnumValueDescr, len(e.Values)),
		sourceFlags:  e.IsFlags,
		targetFlags:  target.IsFlags,
		sourceValues: e.Values,
	}
	if len(target.Values) > 0 {
		n.targetFallback = target.Values[0].Value
	}
	if target.IsFlags != e.IsFlags {
		n.Status = StatusNeeded
	}

	for i, v := range e.Values {
		tv, ok := target.ValueByName(v.Name)
		if !ok {
			// original_source logs a warning and falls back to the
			// target's first value; we record the same fallback.
			if len(target.Values) > 0 {
				tv = target.Values[0]
			}
			n.Status = StatusNeeded
		} else if tv.Value != v.Value {
			n.Status = StatusNeeded
		}
		n.ValueRemap[i] = tv
	}

	s.enums[e.Name] = n
	return n
}

// requestStruct is migration_seed_request_struct: it returns the
// cached node if present, short-circuits a self-referential in-progress
// build (spec.md §4.D "Self-referential struct chains"), and otherwise
// builds the node fresh.
func (s *Seed) requestStruct(ctx context.Context, name intern.Name) *StructNode {
	if n, ok := s.structs[name]; ok {
		return n
	}
	if s.inProgress[name] {
		// Direct self-cycle: allow the field without descending further.
		// A nil node signals "in progress, treat as compatible" to the
		// caller, which only uses this to decide field mappability.
		return nil
	}

	source, ok := s.Source.QueryStruct(name)
	if !ok {
		return nil
	}

	s.inProgress[name] = true
	defer delete(s.inProgress, name)

	target, ok := s.Target.QueryStruct(name)
	if !ok {
		n := &StructNode{Status: StatusRemoved, SourceDef: source}
		s.structs[name] = n
		return n
	}

	n := &StructNode{
		Status:     StatusNotNeeded,
		SourceDef:  source,
		TargetDef:  target,
		FieldRemap: make([]StructField, len(source.Fields)),
	}

	if source.Size != target.Size || source.Alignment != target.Alignment ||
		len(source.Fields) != len(target.Fields) {
		n.Status = StatusNeeded
	}

	for i, f := range source.Fields {
		tf := target.FieldByName(f.Name)
		n.FieldRemap[i] = StructField{Source: f, Target: tf}
		if tf == nil {
			n.Status = StatusNeeded
			continue
		}
		if !s.fieldsMappable(ctx, f, tf) {
			n.Status = StatusNeeded
		} else if f.Archetype == kreflect.ArchetypeInlineArray && f.Count != tf.Count {
			n.Status = StatusNeeded
		} else if f.Archetype == kreflect.ArchetypeEnum {
			if en, ok := s.enums[f.EnumName]; ok && en.Status != StatusNotNeeded {
				n.Status = StatusNeeded
			} else if _, ok := s.enums[f.EnumName]; !ok {
				if e, ok2 := s.Source.QueryEnum(f.EnumName); ok2 {
					if s.buildEnum(ctx, e).Status != StatusNotNeeded {
						n.Status = StatusNeeded
					}
				}
			}
		} else if f.Archetype == kreflect.ArchetypeStruct || (f.Archetype.IsArray() && f.ItemArchetype == kreflect.ArchetypeStruct) {
			nested := f.StructName
			if f.Archetype != kreflect.ArchetypeStruct {
				nested = f.ItemStructName
			}
			if sub := s.requestStruct(ctx, nested); sub != nil && sub.Status != StatusNotNeeded {
				n.Status = StatusNeeded
			}
		}
	}

	s.structs[name] = n
	return n
}

// fieldsMappable implements spec.md §3 "Field mappability rules".
func (s *Seed) fieldsMappable(ctx context.Context, src, dst *kreflect.FieldDescr) bool {
	if src.Archetype != dst.Archetype {
		return false
	}

	switch src.Archetype {
	case kreflect.ArchetypeEnum:
		if src.EnumName != dst.EnumName {
			return false
		}
		return true // width mismatch impossible: Enum size is fixed to platform int.
	case kreflect.ArchetypeStruct, kreflect.ArchetypeStructPointer, kreflect.ArchetypePatch:
		if src.StructName != dst.StructName {
			return false
		}
		// "at least present in the target" — existence is enough here;
		// per-field compatibility is handled by that struct's own node.
		_, ok := s.Target.QueryStruct(dst.StructName)
		return ok
	case kreflect.ArchetypeInlineArray, kreflect.ArchetypeDynamicArray:
		if src.ItemArchetype != dst.ItemArchetype || src.ItemSize != dst.ItemSize {
			return false
		}
		return true // counts may differ for InlineArray; that alone forces Needed at the struct level, not unmappable.
	default:
		// SignedInt/UnsignedInt/Floating/InternedString/StringPointer/
		// ExternalPointer: archetype match is sufficient; width
		// differences on numerics are handled by AdaptNumeric, not
		// treated as unmappable.
		return true
	}
}
