package migrate

import (
	"sort"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// DynArrayHeaderSize is the size in bytes of a dynamic array field's
// runtime header — pointer, length, capacity, each platform-word
// sized — mirroring original_source's kan_dynamic_array_t layout.
const DynArrayHeaderSize = 3 * 8

// Migrator compiles and caches per-struct Programs from a Seed
// (spec.md §4.E "Struct Migrator: Build").
type Migrator struct {
	seed     *Seed
	programs map[intern.Name]*Program
	// pinned retains every Go-allocated dynamic-array backing buffer
	// this migrator has handed out raw pointers to, so they survive
	// for the migrator's lifetime; see adaptDynamicArray.
	pinned [][]byte
}

// NewMigrator compiles nothing yet; programs are built lazily and
// cached as requested, mirroring original_source's struct_migrators
// hash storage being populated on demand during traversal.
func NewMigrator(seed *Seed) *Migrator {
	return &Migrator{seed: seed, programs: make(map[intern.Name]*Program)}
}

// ProgramFor returns the compiled Program for the source struct named
// name, building and caching it on first request. ok is false if the
// struct is Removed or unknown to the seed.
func (m *Migrator) ProgramFor(ctx context.Context, name intern.Name) (*Program, bool) {
	if p, ok := m.programs[name]; ok {
		return p, true
	}

	node, ok := m.seed.QueryStruct(name)
	if !ok || node.Status == StatusRemoved {
		return nil, false
	}

	if node.Status == StatusNotNeeded {
		p := &Program{Copy: []CopyCmd{{SrcOffset: 0, DstOffset: 0, Size: node.SourceDef.Size, Condition: NoCondition}}}
		m.programs[name] = p
		return p, true
	}

	b := newBuilder()
	var copyQueue, zeroQueue []rangeCmd
	for _, fr := range node.FieldRemap {
		if fr.Target == nil {
			continue // unmapped field: source data is simply dropped.
		}
		cond := b.condition(node.SourceDef, fr.Source, NoCondition)
		m.emitField(ctx, b, fr.Source, fr.Target, fr.Source.Offset, fr.Target.Offset, cond, &copyQueue, &zeroQueue)
	}

	b.prog.Copy = append(b.prog.Copy, coalesceCopy(copyQueue)...)
	b.prog.SetZero = append(b.prog.SetZero, coalesceZero(zeroQueue)...)

	m.programs[name] = &b.prog
	return &b.prog, true
}

// rangeCmd is the pre-coalesce representation shared by the Copy and
// SetZero temporary queues (spec.md §4.E "temporary Copy and SetZero
// queues").
type rangeCmd struct {
	srcOffset, dstOffset uint32
	size                 uint32
	condition            int
}

func coalesceCopy(queue []rangeCmd) []CopyCmd {
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].srcOffset < queue[j].srcOffset })
	out := make([]CopyCmd, 0, len(queue))
	for _, r := range queue {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.SrcOffset+last.Size == r.srcOffset && last.DstOffset+last.Size == r.dstOffset && last.Condition == r.condition {
				last.Size += r.size
				continue
			}
		}
		out = append(out, CopyCmd{SrcOffset: r.srcOffset, DstOffset: r.dstOffset, Size: r.size, Condition: r.condition})
	}
	return out
}

func coalesceZero(queue []rangeCmd) []SetZeroCmd {
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].srcOffset < queue[j].srcOffset })
	out := make([]SetZeroCmd, 0, len(queue))
	for _, r := range queue {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.SrcOffset+last.Size == r.srcOffset && last.Condition == r.condition {
				last.Size += r.size
				continue
			}
		}
		out = append(out, SetZeroCmd{SrcOffset: r.srcOffset, Size: r.size, Condition: r.condition})
	}
	return out
}

// emitField dispatches one mapped field pair onto the appropriate
// command stream(s), per spec.md §4.E's per-archetype rules. srcOff/
// dstOff are the absolute offsets of the field pair: at the top level
// they are the field's own declared offsets, for inline-array elements
// they are stepped per element.
func (m *Migrator) emitField(ctx context.Context, b *builder, src, dst *kreflect.FieldDescr, srcOff, dstOff uint32, cond int, copyQueue, zeroQueue *[]rangeCmd) {
	switch src.Archetype {
	case kreflect.ArchetypeSignedInt, kreflect.ArchetypeUnsignedInt, kreflect.ArchetypeFloating:
		if src.Size == dst.Size {
			*copyQueue = append(*copyQueue, rangeCmd{srcOff, dstOff, src.Size, cond})
		} else {
			b.prog.AdaptNumeric = append(b.prog.AdaptNumeric, AdaptNumericCmd{
				SrcOffset: srcOff, DstOffset: dstOff, SrcSize: src.Size, DstSize: dst.Size,
				Archetype: src.Archetype, Condition: cond,
			})
		}

	case kreflect.ArchetypeStringPointer, kreflect.ArchetypeExternalPointer,
		kreflect.ArchetypeStructPointer, kreflect.ArchetypePatch:
		*copyQueue = append(*copyQueue, rangeCmd{srcOff, dstOff, src.Size, cond})
		*zeroQueue = append(*zeroQueue, rangeCmd{srcOff, 0, src.Size, cond})

	case kreflect.ArchetypeInternedString:
		*copyQueue = append(*copyQueue, rangeCmd{srcOff, dstOff, src.Size, cond})

	case kreflect.ArchetypeEnum:
		if en, ok := m.seed.QueryEnum(src.EnumName); ok && en.Status == StatusNotNeeded {
			*copyQueue = append(*copyQueue, rangeCmd{srcOff, dstOff, src.Size, cond})
		} else {
			b.prog.AdaptEnum = append(b.prog.AdaptEnum, AdaptEnumCmd{
				SrcOffset: srcOff, DstOffset: dstOff, EnumName: src.EnumName, Condition: cond,
			})
		}

	case kreflect.ArchetypeStruct:
		m.emitNestedStruct(ctx, b, src.StructName, srcOff, dstOff, cond, copyQueue, zeroQueue)

	case kreflect.ArchetypeInlineArray:
		m.emitInlineArray(ctx, b, src, dst, srcOff, dstOff, cond, copyQueue, zeroQueue)

	case kreflect.ArchetypeDynamicArray:
		m.emitDynamicArray(b, src, dst, srcOff, dstOff, cond, copyQueue, zeroQueue)
	}
}

// emitNestedStruct recurses into structName's own Program and rebases
// every command onto (srcBase, dstBase), per spec.md §4.E "Struct:
// recurse... rebasing its command offsets... NONE conditions in the
// inner program inherit the outer condition, other conditions have
// their indices shifted by the count of outer conditions at recursion
// time."
func (m *Migrator) emitNestedStruct(ctx context.Context, b *builder, structName intern.Name, srcBase, dstBase uint32, outerCond int, copyQueue, zeroQueue *[]rangeCmd) {
	inner, ok := m.ProgramFor(ctx, structName)
	if !ok {
		return // Removed/unknown: nothing to migrate for this embedded struct.
	}

	shift := len(b.prog.Conditions)
	rebaseCond := func(c int) int {
		if c == NoCondition {
			return outerCond
		}
		return c + shift
	}

	for _, c := range inner.Conditions {
		nc := ConditionCmd{SrcOffset: c.SrcOffset + srcBase, Size: c.Size, Archetype: c.Archetype, Field: c.Field, Values: c.Values, Parent: rebaseCond(c.Parent)}
		b.prog.Conditions = append(b.prog.Conditions, nc)
	}
	for _, c := range inner.Copy {
		*copyQueue = append(*copyQueue, rangeCmd{c.SrcOffset + srcBase, c.DstOffset + dstBase, c.Size, rebaseCond(c.Condition)})
	}
	for _, c := range inner.SetZero {
		*zeroQueue = append(*zeroQueue, rangeCmd{c.SrcOffset + srcBase, 0, c.Size, rebaseCond(c.Condition)})
	}
	for _, c := range inner.AdaptNumeric {
		b.prog.AdaptNumeric = append(b.prog.AdaptNumeric, AdaptNumericCmd{
			SrcOffset: c.SrcOffset + srcBase, DstOffset: c.DstOffset + dstBase,
			SrcSize: c.SrcSize, DstSize: c.DstSize, Archetype: c.Archetype, Condition: rebaseCond(c.Condition),
		})
	}
	for _, c := range inner.AdaptEnum {
		b.prog.AdaptEnum = append(b.prog.AdaptEnum, AdaptEnumCmd{
			SrcOffset: c.SrcOffset + srcBase, DstOffset: c.DstOffset + dstBase,
			EnumName: c.EnumName, Condition: rebaseCond(c.Condition),
		})
	}
	for _, c := range inner.AdaptDynamicArray {
		b.prog.AdaptDynamicArray = append(b.prog.AdaptDynamicArray, AdaptDynamicArrayCmd{
			SrcOffset: c.SrcOffset + srcBase, DstOffset: c.DstOffset + dstBase,
			SrcField: c.SrcField, DstField: c.DstField, Condition: rebaseCond(c.Condition),
		})
	}
}

func (m *Migrator) emitInlineArray(ctx context.Context, b *builder, src, dst *kreflect.FieldDescr, srcBase, dstBase uint32, cond int, copyQueue, zeroQueue *[]rangeCmd) {
	n := src.Count
	if dst.Count < n {
		n = dst.Count
	}

	pseudoSrc := &kreflect.FieldDescr{
		Archetype: src.ItemArchetype, Size: src.ItemSize,
		EnumName: src.ItemEnumName, StructName: src.ItemStructName,
	}
	pseudoDst := &kreflect.FieldDescr{
		Archetype: dst.ItemArchetype, Size: dst.ItemSize,
		EnumName: dst.ItemEnumName, StructName: dst.ItemStructName,
	}

	for i := uint32(0); i < n; i++ {
		so := srcBase + i*src.ItemSize
		do := dstBase + i*dst.ItemSize
		m.emitField(ctx, b, pseudoSrc, pseudoDst, so, do, cond, copyQueue, zeroQueue)
	}
}

// emitDynamicArray implements spec.md §4.E's DynamicArray rule:
// bitwise-copyable element archetypes get a header copy plus a
// SetZero on the source header (ownership transfer); otherwise an
// AdaptDynamicArray command carries both field descriptors for the
// runtime to expand element by element.
func (m *Migrator) emitDynamicArray(b *builder, src, dst *kreflect.FieldDescr, srcOff, dstOff uint32, cond int, copyQueue, zeroQueue *[]rangeCmd) {
	copyable := dynamicArrayCopyable(m.seed, src, dst)
	if copyable {
		*copyQueue = append(*copyQueue, rangeCmd{srcOff, dstOff, DynArrayHeaderSize, cond})
		*zeroQueue = append(*zeroQueue, rangeCmd{srcOff, 0, DynArrayHeaderSize, cond})
		return
	}
	b.prog.AdaptDynamicArray = append(b.prog.AdaptDynamicArray, AdaptDynamicArrayCmd{
		SrcOffset: srcOff, DstOffset: dstOff, SrcField: src, DstField: dst, Condition: cond,
	})
}

func dynamicArrayCopyable(seed *Seed, src, dst *kreflect.FieldDescr) bool {
	switch src.ItemArchetype {
	case kreflect.ArchetypeSignedInt, kreflect.ArchetypeUnsignedInt, kreflect.ArchetypeFloating:
		return src.ItemSize == dst.ItemSize
	case kreflect.ArchetypeStringPointer, kreflect.ArchetypeInternedString,
		kreflect.ArchetypeExternalPointer, kreflect.ArchetypeStructPointer, kreflect.ArchetypePatch:
		return true
	case kreflect.ArchetypeEnum:
		en, ok := seed.QueryEnum(src.ItemEnumName)
		return ok && en.Status == StatusNotNeeded
	case kreflect.ArchetypeStruct:
		sn, ok := seed.QueryStruct(src.ItemStructName)
		return ok && sn.Status == StatusNotNeeded
	default:
		return false
	}
}
